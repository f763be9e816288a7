// ABOUTME: Sample construction schedule generator for demo and test databases.
// ABOUTME: Uses OpenAI when a key is configured and falls back to a static schedule.

package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/2389/fieldops/internal/tzclock"
)

// Generator creates a sample schedule using OpenAI or static data.
type Generator struct {
	client *openai.Client
	useAI  bool
	model  string
}

// NewGenerator uses OpenAI when apiKey is set.
func NewGenerator(apiKey, model string) *Generator {
	if apiKey == "" {
		log.Println("No OPENAI_API_KEY found, using static schedule")
		return &Generator{model: model}
	}
	log.Printf("OpenAI API key found, generating schedule with model: %s", model)
	return NewGeneratorWithClient(openai.NewClient(apiKey), model)
}

// NewGeneratorWithClient uses a preconfigured client, e.g. one pointed at a
// different base URL.
func NewGeneratorWithClient(client *openai.Client, model string) *Generator {
	return &Generator{client: client, useAI: true, model: model}
}

// Item is one scheduled activity in local wall-clock terms. Timed items use
// Start/End ("2006-01-02 15:04"); all-day items use Date and Days.
type Item struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	AllDay      bool   `json:"all_day"`
	Date        string `json:"date,omitempty"`
	Days        int    `json:"days,omitempty"`
}

// Generate returns a schedule covering days local days starting at base.
func (g *Generator) Generate(ctx context.Context, base tzclock.Date, days int) ([]Item, error) {
	if days < 1 {
		days = 1
	}
	if !g.useAI {
		return staticSchedule(base, days), nil
	}

	log.Printf("Generating a %d-day schedule from %s via AI...", days, base)
	items, err := g.generateItems(ctx, base, days)
	if err != nil {
		log.Printf("  ✗ AI generation failed: %v", err)
		log.Print("Falling back to static schedule...")
		return staticSchedule(base, days), nil
	}

	valid := items[:0]
	for _, it := range items {
		if err := it.validate(); err != nil {
			log.Printf("  skipping generated item %q: %v", it.Title, err)
			continue
		}
		valid = append(valid, it)
	}
	if len(valid) == 0 {
		log.Print("AI returned no usable items, falling back to static schedule...")
		return staticSchedule(base, days), nil
	}

	log.Printf("  ✓ Generated %d items", len(valid))
	return valid, nil
}

func (g *Generator) generateItems(ctx context.Context, base tzclock.Date, days int) ([]Item, error) {
	last := tzclock.AddCalendarDays(base, days-1)
	prompt := fmt.Sprintf(`Generate a realistic construction site schedule between %s and %s (inclusive). Include:
- Morning crew dispatches and safety briefings
- Inspections (fire, electrical, crane) and deliveries
- At least two overnight activities that cross midnight (concrete pours, night paving)
- One or two all-day events (road closures, site shutdowns)

Return a JSON array of objects with: title, description, location, and either
start and end as local wall-clock times "YYYY-MM-DD HH:MM", or all_day true with date "YYYY-MM-DD" and days (number of days).
Times are local to the site. Every end must be after its start.`, base, last)

	return callOpenAI[[]Item](ctx, g.client, g.model, prompt)
}

func (it Item) validate() error {
	if strings.TrimSpace(it.Title) == "" {
		return fmt.Errorf("missing title")
	}
	if it.AllDay {
		_, err := tzclock.ParseDate(it.Date)
		return err
	}
	start, err := tzclock.ParseLabel(it.Start)
	if err != nil {
		return err
	}
	end, err := tzclock.ParseLabel(it.End)
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return fmt.Errorf("end %s is not after start %s", it.End, it.Start)
	}
	return nil
}

func callOpenAI[T any](ctx context.Context, client *openai.Client, model, prompt string) (T, error) {
	var result T

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a scheduling data generator. Always respond with valid JSON only, no markdown or explanation.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return result, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return result, fmt.Errorf("no response from OpenAI")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimSuffix(strings.TrimPrefix(content, "```"), "```")
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return result, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return result, nil
}
