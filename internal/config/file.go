package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/me/postpilot/pkg/model"
)

// File is the on-disk YAML configuration:
//
//	engine:
//	  exploration_factor: 1.5
//	  retry_policy: none
//	  conflict_policy: reject
//	templates:
//	  - id: tips
//	    prompt_spec: "Share a tip for $(job.weekday)"
//	slots:
//	  - id: morning
//	    start_time: "09:00"
//	    end_time: "11:00"
//	    allowed_template_ids: [tips]
//	    active_weekdays: [mon, tue, wed, thu, fri]
type File struct {
	Engine    *model.EngineConfig
	Templates []TemplateSeed
	Slots     []SlotSeed
}

// TemplateSeed declares a template. Enabled defaults to true.
type TemplateSeed struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	PromptSpec string `yaml:"prompt_spec"`
	Enabled    *bool  `yaml:"enabled"`
}

// SlotSeed declares a time slot. Enabled defaults to true and an empty
// weekday list means every day.
type SlotSeed struct {
	ID               string          `yaml:"id"`
	Name             string          `yaml:"name"`
	Start            model.ClockTime `yaml:"start_time"`
	End              model.ClockTime `yaml:"end_time"`
	AllowedTemplates []string        `yaml:"allowed_template_ids"`
	Weekdays         []string        `yaml:"active_weekdays"`
	Priority         int             `yaml:"priority"`
	Enabled          *bool           `yaml:"enabled"`
}

type rawFile struct {
	Engine    yaml.Node      `yaml:"engine"`
	Templates []TemplateSeed `yaml:"templates"`
	Slots     []SlotSeed     `yaml:"slots"`
}

// LoadFile reads and validates a YAML config file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML config. Engine fields left out of the file keep their
// defaults; the file must still name both policies.
func Parse(data []byte) (*File, error) {
	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	f := &File{Templates: raw.Templates, Slots: raw.Slots}
	if raw.Engine.Kind != 0 {
		cfg := model.DefaultEngineConfig()
		if err := raw.Engine.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		f.Engine = &cfg
	}

	for i, t := range f.Templates {
		if t.ID == "" {
			return nil, fmt.Errorf("templates[%d]: id is required", i)
		}
	}
	for i, s := range f.Slots {
		if _, err := s.toModel(); err != nil {
			return nil, fmt.Errorf("slots[%d]: %w", i, err)
		}
	}
	return f, nil
}

func (t TemplateSeed) toModel() *model.Template {
	enabled := t.Enabled == nil || *t.Enabled
	name := t.Name
	if name == "" {
		name = t.ID
	}
	return &model.Template{ID: t.ID, Name: name, PromptSpec: t.PromptSpec, Enabled: enabled}
}

func (s SlotSeed) toModel() (*model.TimeSlot, error) {
	weekdays := model.AllWeekdays
	if len(s.Weekdays) > 0 {
		w, err := model.ParseWeekdays(s.Weekdays)
		if err != nil {
			return nil, err
		}
		weekdays = w
	}
	slot := &model.TimeSlot{
		ID:               s.ID,
		Name:             s.Name,
		Start:            s.Start,
		End:              s.End,
		AllowedTemplates: model.NewIDSet(s.AllowedTemplates...),
		Weekdays:         weekdays,
		Priority:         s.Priority,
		Enabled:          s.Enabled == nil || *s.Enabled,
	}
	if err := slot.Validate(); err != nil {
		return nil, err
	}
	return slot, nil
}

// Target is where Apply writes.
type Target interface {
	SaveEngineConfig(ctx context.Context, cfg *model.EngineConfig) error
	UpsertTemplate(ctx context.Context, t *model.Template) error
	UpsertTimeSlot(ctx context.Context, s *model.TimeSlot) error
}

// Apply stores the engine config and upserts seeds. Templates go first so
// slots can reference them.
func (f *File) Apply(ctx context.Context, st Target) error {
	if f.Engine != nil {
		cfg := *f.Engine
		if err := st.SaveEngineConfig(ctx, &cfg); err != nil {
			return fmt.Errorf("save engine config: %w", err)
		}
	}
	for _, t := range f.Templates {
		if err := st.UpsertTemplate(ctx, t.toModel()); err != nil {
			return fmt.Errorf("template %s: %w", t.ID, err)
		}
	}
	for _, s := range f.Slots {
		slot, err := s.toModel()
		if err != nil {
			return fmt.Errorf("slot %s: %w", s.ID, err)
		}
		if err := st.UpsertTimeSlot(ctx, slot); err != nil {
			return fmt.Errorf("slot %s: %w", s.ID, err)
		}
	}
	return nil
}
