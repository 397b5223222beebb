// Package insight asks a Gemini model for a short operational summary of the
// current assignments.
package insight

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/harrisonrobin/hubsync/pkg/model"
	"google.golang.org/api/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-1.5-flash"

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned no text")

// Gemini implements engine.Summarizer.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a summarizer authenticated with apiKey.
func NewGemini(ctx context.Context, apiKey, modelName string, opts ...option.ClientOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is not set")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("unable to create gemini client: %w", err)
	}
	return &Gemini{client: client, model: modelName}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Summarize returns the model's summary of tasks.
func (g *Gemini) Summarize(ctx context.Context, tasks []model.Task) (string, error) {
	m := g.client.GenerativeModel(g.model)
	resp, err := m.GenerateContent(ctx, genai.Text(Prompt(tasks)))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	var b strings.Builder
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

type stationTotals struct {
	tasks, packages, completed, ongoing, pending int
}

// Prompt builds the request sent to the model. Stations are listed in
// alphabetical order so identical data yields an identical prompt.
func Prompt(tasks []model.Task) string {
	totals := make(map[model.Station]*stationTotals)
	var all stationTotals
	for _, t := range tasks {
		st, ok := totals[t.Station]
		if !ok {
			st = &stationTotals{}
			totals[t.Station] = st
		}
		for _, s := range []*stationTotals{st, &all} {
			s.tasks++
			s.packages += t.PackageCount
			switch t.Status {
			case model.Completed:
				s.completed++
			case model.Ongoing:
				s.ongoing++
			default:
				s.pending++
			}
		}
	}
	stations := make([]string, 0, len(totals))
	for s := range totals {
		stations = append(stations, string(s))
	}
	sort.Strings(stations)

	var b strings.Builder
	b.WriteString("You are an operations assistant for a parcel delivery hub network.\n")
	b.WriteString("Write two or three short sentences for the shift lead: overall progress, ")
	b.WriteString("the station that needs attention, and one concrete recommendation.\n\n")
	fmt.Fprintf(&b, "Overall: %d tasks, %d packages, %d completed, %d ongoing, %d pending.\n",
		all.tasks, all.packages, all.completed, all.ongoing, all.pending)
	for _, name := range stations {
		s := totals[model.Station(name)]
		fmt.Fprintf(&b, "- %s: %d tasks, %d packages, %d completed, %d ongoing, %d pending\n",
			name, s.tasks, s.packages, s.completed, s.ongoing, s.pending)
	}
	return b.String()
}
