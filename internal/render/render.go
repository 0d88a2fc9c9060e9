// Package render turns a stored template into message text by substituting
// {tag} placeholders.
package render

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/AlexanderKara/orgportal-sub002/internal/store"
)

// TemplateSource loads template bodies by name.
type TemplateSource interface {
	GetTemplate(ctx context.Context, name string) (string, error)
}

// TagSource supplies extra tag values, e.g. today's birthdays or who is on vacation.
type TagSource interface {
	Tags(ctx context.Context, rc Context) (map[string]string, error)
}

// TagFunc adapts a function to TagSource.
type TagFunc func(ctx context.Context, rc Context) (map[string]string, error)

func (f TagFunc) Tags(ctx context.Context, rc Context) (map[string]string, error) { return f(ctx, rc) }

// Context describes one delivery.
type Context struct {
	Notification string
	Target       string
	ChatTitle    string
	Now          time.Time
}

var tagPattern = regexp.MustCompile(`\{([a-z_]+)\}`)

// Renderer substitutes tags into stored templates.
type Renderer struct {
	templates TemplateSource
	sources   []TagSource
	log       *zap.Logger
}

func New(templates TemplateSource, log *zap.Logger, sources ...TagSource) *Renderer {
	return &Renderer{templates: templates, sources: sources, log: log}
}

// Render loads templateRef and fills in its tags. A missing template falls
// back to the notification name; unknown tags are left as written.
func (r *Renderer) Render(ctx context.Context, templateRef string, rc Context) (string, error) {
	body := rc.Notification
	if templateRef != "" {
		b, err := r.templates.GetTemplate(ctx, templateRef)
		switch {
		case err == nil:
			body = b
		case errors.Is(err, store.ErrNotFound):
			r.log.Warn("template not found, using notification name",
				zap.String("template", templateRef))
		default:
			return "", fmt.Errorf("load template %q: %w", templateRef, err)
		}
	}

	tags := builtinTags(rc)
	for _, src := range r.sources {
		extra, err := src.Tags(ctx, rc)
		if err != nil {
			r.log.Warn("tag source failed", zap.Error(err), zap.String("template", templateRef))
			continue
		}
		for k, v := range extra {
			tags[k] = v
		}
	}

	return tagPattern.ReplaceAllStringFunc(body, func(m string) string {
		if v, ok := tags[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	}), nil
}

func builtinTags(rc Context) map[string]string {
	return map[string]string{
		"date":         rc.Now.Format("02.01.2006"),
		"time":         rc.Now.Format("15:04"),
		"weekday":      rc.Now.Weekday().String(),
		"notification": rc.Notification,
		"chat_id":      rc.Target,
		"chat_title":   rc.ChatTitle,
		"year":         strconv.Itoa(rc.Now.Year()),
	}
}
