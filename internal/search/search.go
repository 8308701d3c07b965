// Package search implements the one-shot CLI mode: run a SearchBun query
// through the bridge and render the result as JSON, plain text, or Markdown.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/gaspardpetit/bundocs-mcp/internal/config"
	"github.com/gaspardpetit/bundocs-mcp/internal/logx"
	"github.com/gaspardpetit/bundocs-mcp/internal/proxy"
)

// Client is the upstream surface the search mode needs.
type Client interface {
	Forward(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
	FetchMarkdown(ctx context.Context, url string) (string, error)
}

var docURLPattern = regexp.MustCompile(`https://bun\.com/[^\s)>"']+`)

// Run executes the query and writes the formatted result to outputPath, or
// stdout when the path is empty.
func Run(ctx context.Context, client Client, query, format, outputPath string) error {
	payload, err := json.Marshal(proxy.SearchRequest(json.RawMessage(`1`), query))
	if err != nil {
		return fmt.Errorf("encode search request: %w", err)
	}
	raw, err := client.Forward(ctx, payload)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	result := resultField(raw)

	var formatted string
	switch format {
	case config.FormatJSON:
		formatted, err = formatJSON(result)
	case config.FormatText:
		formatted, err = formatText(result)
	case config.FormatMarkdown:
		formatted, err = formatMarkdown(ctx, client, result)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	if err != nil {
		return err
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(formatted), 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Output written to: %s\n", outputPath)
		return nil
	}
	fmt.Println(formatted)
	return nil
}

// resultField unwraps the result key of the upstream payload; payloads that
// are not an envelope pass through whole.
func resultField(raw json.RawMessage) json.RawMessage {
	var probe struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Result != nil {
		return probe.Result
	}
	return raw
}

// contentTexts collects the text blocks of an MCP tool result. ok is false
// when the payload does not follow the content list shape.
func contentTexts(result json.RawMessage) ([]string, bool) {
	var probe struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(result, &probe); err != nil || probe.Content == nil {
		return nil, false
	}
	var texts []string
	for _, item := range probe.Content {
		if item.Text != "" {
			texts = append(texts, item.Text)
		}
	}
	return texts, true
}

func formatJSON(result json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, result, "", "  "); err != nil {
		return "", fmt.Errorf("format result: %w", err)
	}
	return buf.String(), nil
}

func formatText(result json.RawMessage) (string, error) {
	texts, ok := contentTexts(result)
	if !ok {
		return formatJSON(result)
	}
	var out bytes.Buffer
	for _, text := range texts {
		out.WriteString(text)
		out.WriteString("\n\n")
	}
	return out.String(), nil
}

// formatMarkdown renders a heading plus every result item. Items that link a
// docs page get the page's raw Markdown appended, fetched with a separate
// Accept: text/markdown GET; fetch failures fall back to the item text alone.
func formatMarkdown(ctx context.Context, client Client, result json.RawMessage) (string, error) {
	var out bytes.Buffer
	out.WriteString("# Bun Documentation Search Results\n\n")

	texts, ok := contentTexts(result)
	if !ok {
		pretty, err := formatJSON(result)
		if err != nil {
			return "", err
		}
		out.WriteString("```json\n")
		out.WriteString(pretty)
		out.WriteString("\n```\n")
		return out.String(), nil
	}

	for _, text := range texts {
		out.WriteString(text)
		out.WriteString("\n\n")
		url := docURLPattern.FindString(text)
		if url == "" {
			continue
		}
		page, err := client.FetchMarkdown(ctx, url)
		if err != nil {
			logx.Log.Warn().Err(err).Str("url", url).Msg("markdown fetch failed; keeping summary only")
			continue
		}
		out.WriteString("---\n\n")
		out.WriteString(page)
		out.WriteString("\n\n")
	}
	return out.String(), nil
}
