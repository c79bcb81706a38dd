package gemini

// Wire types for the BidiGenerateContent websocket protocol. Outbound
// messages use snake_case keys; the server replies in camelCase.

type clientMessage struct {
	Setup         *setupPayload  `json:"setup,omitempty"`
	RealtimeInput *realtimeInput `json:"realtime_input,omitempty"`
	ClientContent *clientContent `json:"client_content,omitempty"`
}

type setupPayload struct {
	Model               string            `json:"model"`
	GenerationConfig    *generationConfig `json:"generation_config,omitempty"`
	SystemInstruction   *content          `json:"system_instruction,omitempty"`
	InputTranscription  *struct{}         `json:"input_audio_transcription,omitempty"`
	OutputTranscription *struct{}         `json:"output_audio_transcription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"response_modalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speech_config,omitempty"`
}

type speechConfig struct {
	VoiceConfig *voiceConfig `json:"voice_config,omitempty"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig *prebuiltVoiceConfig `json:"prebuilt_voice_config,omitempty"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voice_name"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"media_chunks"`
}

type mediaChunk struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type clientContent struct {
	Turns        []content `json:"turns"`
	TurnComplete bool      `json:"turn_complete"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data"`
}

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}
