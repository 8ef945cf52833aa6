package hevyuploader

import (
	"context"
	"fmt"
	"strings"
)

// templateResolver maps exercise names to Hevy template ids. Matching is
// deliberately strict: exact name or a known alias only. Over-eager fuzzy
// matching would merge distinct exercises (e.g. "Sled Push" into "Leg Press")
// and silently corrupt the user's history, so an unmatched name gets its own
// custom template instead.
type templateResolver struct {
	client  *hevyClient
	cache   map[string]string
	fetched []exerciseTemplate
	loaded  bool
}

// strictAliases lists acceptable alternative names per normalized name.
var strictAliases = map[string][]string{
	"farmers carry": {"farmers walk", "farmer walk", "farmer carry"},
	"farmers walk":  {"farmers carry", "farmer walk", "farmer carry"},
	"skierg":        {"ski erg"},
	"ski erg":       {"skierg"},
	"sled push":     {"prowler push"},
	"sled pull":     {"prowler pull"},
	"wall balls":    {"wall ball"},
	"wall ball":     {"wall balls"},
	"rowing":        {"row", "rowing machine"},
	"row":           {"rowing", "rowing machine"},
}

func newTemplateResolver(client *hevyClient) *templateResolver {
	return &templateResolver{
		client: client,
		cache:  make(map[string]string),
	}
}

// resolve returns the template id for an exercise name, creating a custom
// template when nothing matches.
func (r *templateResolver) resolve(ctx context.Context, name string) (string, error) {
	normalized := normalizeExerciseName(name)

	if id, ok := r.cache[normalized]; ok {
		return id, nil
	}

	if !r.loaded {
		templates, err := r.client.listTemplates(ctx)
		if err != nil {
			return "", fmt.Errorf("fetch exercise templates: %w", err)
		}
		r.fetched = templates
		r.loaded = true
	}

	if id := r.match(normalized); id != "" {
		r.cache[normalized] = id
		return id, nil
	}

	exerciseType, muscleGroup := templateConfig(normalized)
	id, err := r.client.createTemplate(ctx, name, exerciseType, muscleGroup)
	if err != nil {
		return "", fmt.Errorf("create custom template for %q: %w", name, err)
	}
	r.client.logger.Info("Created custom exercise template", "exercise", name, "template_id", id)
	r.cache[normalized] = id
	return id, nil
}

func (r *templateResolver) match(normalized string) string {
	for _, t := range r.fetched {
		if normalizeExerciseName(t.Title) == normalized {
			return t.Id
		}
	}
	for _, alias := range strictAliases[normalized] {
		for _, t := range r.fetched {
			if normalizeExerciseName(t.Title) == alias {
				return t.Id
			}
		}
	}
	return ""
}

// templateConfig picks the Hevy measurement type for a custom template.
func templateConfig(normalized string) (exerciseType, muscleGroup string) {
	distanceDuration := []string{
		"skierg", "ski erg", "rowing", "row", "sled", "prowler",
		"farmers carry", "farmers walk", "running", "cycling", "swimming", "walking",
	}
	for _, pattern := range distanceDuration {
		if strings.Contains(normalized, pattern) {
			return "distance_duration", "full_body"
		}
	}
	if strings.Contains(normalized, "wall ball") {
		return "weight_duration", "full_body"
	}
	return "weight_reps", "other"
}

// normalizeExerciseName lowercases and strips punctuation and equipment
// suffixes that vary between platforms.
func normalizeExerciseName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "'", "")
	name = strings.ReplaceAll(name, "carries", "carry")

	suffixes := []string{"(barbell)", "(dumbbell)", "(machine)", "(cable)", "(outdoor)", "(treadmill)"}
	for _, suffix := range suffixes {
		name = strings.TrimSuffix(name, suffix)
	}
	return strings.TrimSpace(name)
}
