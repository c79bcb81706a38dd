// Package prompt renders the tutor system prompt from a template file.
package prompt

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"text/template"

	"github.com/tutor360/tutorvoice/pkg/logger"
)

// TutorContext is the data available to the system prompt template.
type TutorContext struct {
	TargetLanguage string
	NativeLanguage string
	Level          string // "beginner", "intermediate", "advanced"
	StudentName    string
	Topic          string
}

// defaultTemplate is used when no template file is configured.
const defaultTemplate = `You are a friendly {{.TargetLanguage}} tutor having a spoken conversation with {{if .StudentName}}{{.StudentName}}{{else}}a student{{end}}.
The student's level is {{.Level}}. Speak mostly in {{.TargetLanguage}}, switching to {{.NativeLanguage}} only to explain mistakes.
{{if .Topic}}Today's conversation topic: {{.Topic}}.{{end}}
Keep replies short and conversational. Gently correct errors and encourage the student to keep talking.`

// Engine handles template loading, caching, and rendering
type Engine struct {
	templateCache map[string]*template.Template
	cacheMutex    sync.RWMutex
	logger        *logger.Logger
}

// NewEngine creates a new prompt engine
func NewEngine(log *logger.Logger) *Engine {
	return &Engine{
		templateCache: make(map[string]*template.Template),
		logger:        log.Named("prompt-engine"),
	}
}

// Render renders the system prompt. An empty templatePath selects the
// built-in template.
func (e *Engine) Render(templatePath string, ctx TutorContext) (string, error) {
	tmpl, err := e.getTemplate(templatePath)
	if err != nil {
		return "", fmt.Errorf("failed to get template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	e.logger.Debug("Rendered system prompt",
		logger.String("template_path", templatePath),
		logger.String("target_language", ctx.TargetLanguage),
		logger.String("level", ctx.Level))
	return buf.String(), nil
}

func (e *Engine) getTemplate(templatePath string) (*template.Template, error) {
	key := templatePath
	if key == "" {
		key = "builtin"
	}

	e.cacheMutex.RLock()
	tmpl, ok := e.templateCache[key]
	e.cacheMutex.RUnlock()
	if ok {
		return tmpl, nil
	}

	e.cacheMutex.Lock()
	defer e.cacheMutex.Unlock()
	if tmpl, ok := e.templateCache[key]; ok {
		return tmpl, nil
	}

	text := defaultTemplate
	if templatePath != "" {
		raw, err := os.ReadFile(templatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read template file: %w", err)
		}
		text = string(raw)
	}

	tmpl, err := template.New(key).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	e.templateCache[key] = tmpl
	return tmpl, nil
}

// ReloadTemplate drops a cached template so the next render re-reads it.
func (e *Engine) ReloadTemplate(templatePath string) {
	e.cacheMutex.Lock()
	defer e.cacheMutex.Unlock()
	key := templatePath
	if key == "" {
		key = "builtin"
	}
	delete(e.templateCache, key)
}
