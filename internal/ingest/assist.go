package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// assistBatchSize caps how many file facts go into one model call.
const assistBatchSize = 40

const assistSystemPrompt = `You are a hierarchical ingest mapping agent.

INPUT:
File facts including the relative path from a shoot root.

YOUR TASK:
Normalize paths to: {subject_slug}/{camera_id}/{asset_type}/{original_filename}

METHODOLOGY: TOP-DOWN HIERARCHY SCAN
Parse the path components from Left (Root) to Right (File) to identify entities.

1. DETECT SUBJECT (The "Who"):
   - Scan ALL path components (not just top-level) for subject names.
   - Ignore generic production containers (e.g., "Day_01", "Shoot_Data", "Cards", "Footage", "Media").
   - ALSO IGNORE organizational/utility folders that are NOT subject names:
     "test", "tests", "testing", "shared", "common", "temp", "tmp",
     "backup", "archive", "misc", "other", "unknown", "assets", "output", "exports".
   - ALSO IGNORE software/tool folder names that are NOT subject names:
     "livefacelink", "liveface", "nuke", "flame", "fusion", "resolve",
     "davinci", "premiere", "aftereffects", "grading", "finishing", "conform".
   - HEURISTIC: Subject names are typically human names (first names, full names).
     Technical/software terms are NOT subjects.
   - Subject names can appear at ANY depth in the path, and also embedded in
     filenames: as an ALLCAPS prefix ("JO_C001_FullBody.mov" -> "jo"), or after
     a session/take identifier ("vac_0510_Jo_English_Ram.mov" -> "jo").
   - Real subject folders typically contain camera-type subdirectories
     (e.g., "SONY_A9_4k_24fps/", "Cam_A/", "Angle_1/"). Folders with media
     files directly at root level are likely organizational, not subjects.
   - The first distinct, non-generic human name found (in path OR filename) is the SUBJECT.
   - If no distinct subject folder exists, use "shared".
   - Words appearing in the package_root may still be valid subject names;
     evaluate each component independently.
   - Slugify: lowercase, underscores only (e.g. "Jo Plaete" -> "jo_plaete").

2. DETECT CAMERA (The "Eye"):
   - Look for camera identifiers inside the Subject folder or in the Filename.
   - Keywords: "Cam A", "B-Cam", "Pyxis", "Sony", "Angle 1", "Wide".
   - If explicit tag found -> slugify it (e.g. "cam_b", "cam_pyxis").
   - If NO tag found -> default to "cam_a".

3. DETECT ASSET TYPE (The "Format"):
   - Look for type keywords inside the Camera folder or in the Filename.
   - "Proxy" or lightweight .mp4 -> "proxy"
   - "Graded" or processed .mov -> "graded"
   - "Raw", "BRAW", "Arri", .mxf -> "raw"
   - Audio files (.wav, .aiff, .mp3) -> "raw"
   - Sidecars (.xml, .json) -> "metadata"

OUTPUT:
Return ONLY valid JSON with a 'manifest' list.
Each item MUST have these exact keys:
- "source_path": The relative path of the input file (from input).
- "target_path": The proposed normalized destination path.`

// ManifestEntry is one source-to-normalized-path mapping from the assist model.
type ManifestEntry struct {
	SourcePath string `json:"source_path"`
	TargetPath string `json:"target_path"`
}

// Assist normalizes messy delivery structures with an OpenAI-compatible model.
type Assist struct {
	client openai.Client
	model  string
}

// NewAssist builds an assist client. baseURL may be empty for the default
// endpoint; model falls back to gpt-4o-mini.
func NewAssist(apiKey, baseURL, model string) *Assist {
	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if strings.TrimSpace(baseURL) != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Assist{
		client: openai.NewClient(clientOpts...),
		model:  model,
	}
}

// Normalize sends the file facts to the model in batches and collects the
// combined manifest. A failed batch is retried twice and then skipped, so a
// partial manifest is possible.
func (a *Assist) Normalize(ctx context.Context, packageRoot string, files []FileFact) ([]ManifestEntry, error) {
	var manifest []ManifestEntry
	totalBatches := (len(files) + assistBatchSize - 1) / assistBatchSize

	for i := 0; i < len(files); i += assistBatchSize {
		chunk := files[i:min(i+assistBatchSize, len(files))]
		batchNum := i/assistBatchSize + 1

		payload, err := json.Marshal(map[string]any{
			"package_root": packageRoot,
			"file_count":   len(chunk),
			"files":        chunk,
		})
		if err != nil {
			return nil, err
		}

		slog.Info("assist batch", "batch", batchNum, "of", totalBatches, "files", len(chunk))

		var entries []ManifestEntry
		var lastErr error
		for attempt := 0; attempt < 3; attempt++ {
			entries, lastErr = a.callModel(ctx, string(payload))
			if lastErr == nil {
				break
			}
			slog.Warn("assist batch attempt failed",
				"batch", batchNum, "attempt", attempt+1, "error", lastErr)
		}
		if lastErr != nil {
			slog.Error("assist batch failed after retries", "batch", batchNum)
			continue
		}
		manifest = append(manifest, entries...)
	}

	if len(manifest) == 0 {
		return nil, errors.New("assist returned no mappings")
	}
	return manifest, nil
}

func (a *Assist) callModel(ctx context.Context, input string) ([]ManifestEntry, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(assistSystemPrompt),
			openai.UserMessage(input),
		},
		Model:       a.model,
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "ingest_manifest",
					Strict: openai.Bool(true),
					Schema: manifestSchema(),
				},
			},
		},
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		// Some gateways reject json_schema; retry with plain JSON mode and
		// rely on strict parsing below.
		if shouldFallbackJSONMode(err) {
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
			}
			resp, err = a.client.Chat.Completions.New(ctx, params)
		}
	}
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("assist: empty response")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	var parsed struct {
		Manifest []ManifestEntry `json:"manifest"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("assist: parse response: %w", err)
	}
	return parsed.Manifest, nil
}

func shouldFallbackJSONMode(err error) bool {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "json_schema") || strings.Contains(msg, "response_format") {
		return true
	}
	return strings.Contains(msg, "unsupported") && strings.Contains(msg, "schema")
}

func manifestSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"manifest"},
		"properties": map[string]any{
			"manifest": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"source_path", "target_path"},
					"properties": map[string]any{
						"source_path": map[string]any{"type": "string"},
						"target_path": map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}

// targetParts is a parsed normalized path: subject/camera/asset_type/file.
type targetParts struct {
	Subject   string
	Camera    string
	AssetType string
}

func parseTargetPath(target string) targetParts {
	parts := strings.Split(strings.Trim(target, "/"), "/")
	p := targetParts{Subject: "shared", Camera: "cam_a", AssetType: "raw"}
	if len(parts) >= 1 && parts[0] != "" {
		p.Subject = parts[0]
	}
	if len(parts) >= 2 {
		p.Camera = parts[1]
	}
	if len(parts) >= 3 {
		p.AssetType = parts[2]
	}
	return p
}

// genericDirs are path components that never count as subject candidates.
var genericDirs = map[string]bool{
	"media": true, "footage": true, "raw": true, "proxy": true, "proxies": true,
	"graded": true, "exports": true, "output": true, "rec709_conversion": true,
	"rec709": true, "conversion": true, "cards": true, "card": true,
	"day_01": true, "day_02": true, "day_1": true, "day_2": true,
	"shoot_data": true, "shared": true, "common": true,
	"cam_a": true, "cam_b": true, "camera": true, "angle_1": true, "angle_2": true,
}

var gradedSuffixes = []string{
	"_graded", "_color", "_colour", "_grade", "_lut", "_cc",
	"_rec709", "_conform", "_export", "_dnxhd", "_prores",
}

// validateSubjectAssignments cross-checks model subject assignments against
// the directory structure. When over 80% of files land on one subject but
// the paths show several distinct non-generic directories, the directory
// structure wins.
func validateSubjectAssignments(lookup map[string]targetParts, files []FileFact) map[string]targetParts {
	if len(lookup) == 0 {
		return lookup
	}

	counts := map[string]int{}
	for _, parsed := range lookup {
		counts[parsed.Subject]++
	}
	total := 0
	topSubject := ""
	for subject, n := range counts {
		total += n
		if topSubject == "" || n > counts[topSubject] {
			topSubject = subject
		}
	}
	if total == 0 || float64(counts[topSubject])/float64(total) <= 0.8 {
		return lookup
	}

	candidates := map[string]map[string]bool{}
	for _, f := range files {
		parts := strings.Split(f.Path, "/")
		for _, part := range parts[:len(parts)-1] {
			lower := strings.ReplaceAll(strings.ToLower(part), " ", "_")
			if genericDirs[lower] || strings.HasPrefix(lower, ".") {
				continue
			}
			if candidates[lower] == nil {
				candidates[lower] = map[string]bool{}
			}
			candidates[lower][f.Path] = true
		}
	}

	real := map[string]bool{}
	for name, paths := range candidates {
		if len(paths) >= 2 {
			real[name] = true
		}
	}
	if len(real) <= 1 {
		return lookup
	}

	slog.Info("redistributing subject assignments by directory structure",
		"top_subject", topSubject, "directories", len(real))

	for _, f := range files {
		parsed, ok := lookup[f.Path]
		if !ok {
			continue
		}
		parts := strings.Split(f.Path, "/")
		for _, part := range parts[:len(parts)-1] {
			lower := strings.ReplaceAll(strings.ToLower(part), " ", "_")
			if real[lower] {
				parsed.Subject = lower
				lookup[f.Path] = parsed
				break
			}
		}
	}
	return lookup
}

// matchSharedByFilename reassigns "shared" files to a subject when their
// filename stem (optionally minus a grading suffix) matches exactly one
// subject-assigned file. Graded exports usually keep the source clip's stem.
func matchSharedByFilename(lookup map[string]targetParts, files []FileFact) map[string]targetParts {
	stemSubjects := map[string]map[string]bool{}
	for _, f := range files {
		parsed, ok := lookup[f.Path]
		if !ok || parsed.Subject == "shared" {
			continue
		}
		s := stemOf(f.Path)
		if stemSubjects[s] == nil {
			stemSubjects[s] = map[string]bool{}
		}
		stemSubjects[s][parsed.Subject] = true
	}
	if len(stemSubjects) == 0 {
		return lookup
	}

	reassigned := 0
	for _, f := range files {
		parsed, ok := lookup[f.Path]
		if !ok || parsed.Subject != "shared" {
			continue
		}

		s := stemOf(f.Path)
		matched := stemSubjects[s]
		if len(matched) == 0 {
			for _, suffix := range gradedSuffixes {
				if strings.HasSuffix(s, suffix) {
					matched = stemSubjects[strings.TrimSuffix(s, suffix)]
					break
				}
			}
		}

		if len(matched) == 1 {
			for subject := range matched {
				parsed.Subject = subject
			}
			lookup[f.Path] = parsed
			reassigned++
		}
	}

	if reassigned > 0 {
		slog.Info("reassigned shared files by filename stem", "count", reassigned)
	}
	return lookup
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}
