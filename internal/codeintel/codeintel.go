// Package codeintel implements the Codebase Analyzer RPC (§4.J): a
// thin client forwarding overview/exports/import-graph/symbol-trace queries
// to the companion extension, then progressively compressing the returned
// tree to fit an output budget. No k6 analogue exists (k6 has no
// source-navigation surface); the query-then-progressively-compress shape
// is written fresh to the exact contract §4.J names.
package codeintel

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Query names one of the four supported companion-extension queries
// (§4.J: "overview, exports, import-graph, and symbol-trace").
type Query string

const (
	QueryOverview    Query = "overview"
	QueryExports     Query = "exports"
	QueryImportGraph Query = "import-graph"
	QuerySymbolTrace Query = "symbol-trace"
)

// Scope threads the include/exclude glob patterns and numeric depth the
// companion-extension query accepts (§4.J: "threading scope
// include/exclude glob patterns and numeric depth").
type Scope struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
	Depth   int      `json:"depth,omitempty"`
	Symbol  string   `json:"symbol,omitempty"` // symbol-trace only
}

// Symbol is one node of a file's symbol tree, nestable to arbitrary depth
// (e.g. a class containing methods).
type Symbol struct {
	Name     string    `json:"name"`
	Kind     string    `json:"kind"`
	Line     int       `json:"line,omitempty"`
	Children []*Symbol `json:"children,omitempty"`
}

// File is one source file's listing within a folder.
type File struct {
	Path    string    `json:"path"`
	Symbols []*Symbol `json:"symbols,omitempty"`
}

// Folder is one directory level of the returned tree, recursive.
type Folder struct {
	Path    string    `json:"path"`
	Files   []*File   `json:"files,omitempty"`
	Folders []*Folder `json:"folders,omitempty"`
}

// Requester is the one-method view of the companion-extension bridge client
// this package needs, satisfied by *companion.Client.
type Requester interface {
	CodeQuery(ctx context.Context, query string, params interface{}) (json.RawMessage, error)
}

// Client forwards code-structure queries and compresses the result.
type Client struct {
	Companion Requester

	// MaxChars is the compressed-output budget (§4.J: "~3000
	// tokens, ~12,000 characters"). Zero means use the default.
	MaxChars int
}

const defaultMaxChars = 12000

// New returns a Client using companion for queries and the default
// ≈3000-token/≈12,000-char output budget.
func New(companion Requester) *Client {
	return &Client{Companion: companion, MaxChars: defaultMaxChars}
}

// Run forwards query+scope to the companion extension, decodes the
// returned folder tree, and compresses it to fit the output budget,
// returning the rendered text plus the compression level actually applied
// (0 = none).
func (c *Client) Run(ctx context.Context, query Query, scope Scope) (string, int, error) {
	raw, err := c.Companion.CodeQuery(ctx, string(query), scope)
	if err != nil {
		return "", 0, fmt.Errorf("codeintel: query %s: %w", query, err)
	}

	var root Folder
	if err := json.Unmarshal(raw, &root); err != nil {
		return "", 0, fmt.Errorf("codeintel: decode %s response: %w", query, err)
	}

	budget := c.MaxChars
	if budget <= 0 {
		budget = defaultMaxChars
	}

	return compress(&root, budget)
}

// compressLevel names one step of the ordered compression pipeline (§4.J:
// "drop deepest symbol nesting first, then drop symbols entirely, then
// drop per-file listing (folders only), then switch to flat path list,
// then switch to folder-only summary with counts").
type compressLevel int

const (
	levelFull compressLevel = iota
	levelDropDeepestSymbols
	levelDropSymbols
	levelFoldersOnly
	levelFlatPathList
	levelFolderCounts
	levelMax
)

// compress renders root at decreasing levels of detail until the result
// fits budget characters, returning the text and the level applied.
func compress(root *Folder, budget int) (string, int, error) {
	for level := levelFull; level < levelMax; level++ {
		text := render(root, level)
		if len(text) <= budget {
			return text, int(level), nil
		}
	}
	// Even the coarsest rendering didn't fit: truncate it hard rather
	// than fail the tool call outright.
	text := render(root, levelFolderCounts)
	if len(text) > budget {
		text = text[:budget] + "\n… (truncated)"
	}
	return text, int(levelFolderCounts), nil
}

func render(root *Folder, level compressLevel) string {
	var b strings.Builder
	switch level {
	case levelFull:
		renderFolder(&b, root, 0, -1)
	case levelDropDeepestSymbols:
		renderFolder(&b, root, 0, 1)
	case levelDropSymbols:
		renderFolder(&b, root, 0, 0)
	case levelFoldersOnly:
		renderFoldersOnly(&b, root, 0)
	case levelFlatPathList:
		renderFlatPaths(&b, root)
	case levelFolderCounts:
		renderFolderCounts(&b, root)
	}
	return b.String()
}

// renderFolder writes the full tree, symbol nesting truncated to maxSymbolDepth
// levels (-1 = unlimited, 0 = no symbols at all — files only).
func renderFolder(b *strings.Builder, f *Folder, indent, maxSymbolDepth int) {
	pad := strings.Repeat("  ", indent)
	fmt.Fprintf(b, "%s%s/\n", pad, f.Path)
	for _, file := range f.Files {
		fmt.Fprintf(b, "%s  %s\n", pad, file.Path)
		if maxSymbolDepth != 0 {
			for _, sym := range file.Symbols {
				renderSymbol(b, sym, indent+2, 1, maxSymbolDepth)
			}
		}
	}
	for _, sub := range sortedFolders(f.Folders) {
		renderFolder(b, sub, indent+1, maxSymbolDepth)
	}
}

func renderSymbol(b *strings.Builder, s *Symbol, indent, depth, maxDepth int) {
	pad := strings.Repeat("  ", indent)
	fmt.Fprintf(b, "%s%s %s\n", pad, s.Kind, s.Name)
	if maxDepth >= 0 && depth >= maxDepth {
		return
	}
	for _, child := range s.Children {
		renderSymbol(b, child, indent+1, depth+1, maxDepth)
	}
}

func renderFoldersOnly(b *strings.Builder, f *Folder, indent int) {
	pad := strings.Repeat("  ", indent)
	fmt.Fprintf(b, "%s%s/ (%d files)\n", pad, f.Path, len(f.Files))
	for _, sub := range sortedFolders(f.Folders) {
		renderFoldersOnly(b, sub, indent+1)
	}
}

func renderFlatPaths(b *strings.Builder, f *Folder) {
	for _, p := range collectFilePaths(f) {
		b.WriteString(p)
		b.WriteString("\n")
	}
}

func collectFilePaths(f *Folder) []string {
	var out []string
	for _, file := range f.Files {
		out = append(out, file.Path)
	}
	for _, sub := range sortedFolders(f.Folders) {
		out = append(out, collectFilePaths(sub)...)
	}
	return out
}

func renderFolderCounts(b *strings.Builder, f *Folder) {
	total, folders := countTree(f)
	fmt.Fprintf(b, "%d folders, %d files total\n", folders, total)
	for _, sub := range sortedFolders(f.Folders) {
		renderFolderCountLine(b, sub, 1)
	}
}

func renderFolderCountLine(b *strings.Builder, f *Folder, indent int) {
	total, folders := countTree(f)
	pad := strings.Repeat("  ", indent)
	fmt.Fprintf(b, "%s%s/ (%d files, %d subfolders)\n", pad, f.Path, total, folders)
}

func countTree(f *Folder) (files, folders int) {
	files = len(f.Files)
	for _, sub := range f.Folders {
		sf, sd := countTree(sub)
		files += sf
		folders += sd + 1
	}
	return files, folders
}

func sortedFolders(folders []*Folder) []*Folder {
	out := make([]*Folder, len(folders))
	copy(out, folders)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
