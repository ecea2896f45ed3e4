package ai

import (
	"context"
	"strings"

	"github.com/myrjola/goldenstream/internal/errors"
	"google.golang.org/genai"
)

// Role is the author of one conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one ordered message in a conversation.
type Turn struct {
	Role Role
	Text string
}

// Request describes one completion call to the generative backend.
type Request struct {
	// System is an optional system instruction prepended to the conversation.
	System string
	// Turns are the ordered conversation messages. The last turn is the one
	// being answered.
	Turns []Turn
	// ForceJSON requests an application/json response. The API rejects this
	// in combination with search grounding, so it is ignored when
	// GroundWithSearch is set.
	ForceJSON bool
	// GroundWithSearch augments the answer with Google Search results and
	// populates Response.Sources from the grounding metadata.
	GroundWithSearch bool
}

// Response is the backend's answer with any web sources it was grounded on.
type Response struct {
	Text    string
	Sources []Source
}

// Source is one grounding citation. Entries missing either field are dropped
// before they reach the caller.
type Source struct {
	URI   string
	Title string
}

// Client wraps the Gemini API behind the Request/Response contract.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient dials the Gemini API with the given key and model name.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{ //nolint:exhaustruct // defaults suffice
		APIKey: apiKey,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create genai client")
	}
	return &Client{
		client: client,
		model:  model,
	}, nil
}

// Complete performs one generation call and returns the trimmed answer text
// together with any grounding sources.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	contents := make([]*genai.Content, 0, len(req.Turns))
	for _, turn := range req.Turns {
		role := genai.Role(genai.RoleUser)
		if turn.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}

	config := &genai.GenerateContentConfig{} //nolint:exhaustruct // defaults suffice
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.GroundWithSearch {
		config.Tools = []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}}, //nolint:exhaustruct // search tool has no options
		}
	} else if req.ForceJSON {
		// JSON response mode and the search tool are mutually exclusive on
		// the API side.
		config.ResponseMIMEType = "application/json"
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return Response{}, errors.Wrap(err, "generate content")
	}

	return Response{
		Text:    strings.TrimSpace(result.Text()),
		Sources: groundingSources(result),
	}, nil
}

// groundingSources harvests web citations from the first candidate's grounding
// metadata. Chunks without both URI and title are skipped.
func groundingSources(result *genai.GenerateContentResponse) []Source {
	if len(result.Candidates) == 0 {
		return nil
	}
	metadata := result.Candidates[0].GroundingMetadata
	if metadata == nil {
		return nil
	}
	var sources []Source
	for _, chunk := range metadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		if chunk.Web.URI == "" || chunk.Web.Title == "" {
			continue
		}
		sources = append(sources, Source{
			URI:   chunk.Web.URI,
			Title: chunk.Web.Title,
		})
	}
	return sources
}
