package migrate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/calleja/cql-migrate/common/go/logging"
)

var log = logging.NewLogger()

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"

	migrationExtension = ".cql"
	versionLayout      = "20060102_150405"
)

// filenamePattern is the fixed naming grammar: a 14-digit timestamp version
// followed by a slug, e.g. 20250115_093000_add_user_table.cql.
var filenamePattern = regexp.MustCompile(`^(\d{8}_\d{6})_([A-Za-z0-9_]+)\.cql$`)

// Source enumerates and parses migration files from a single directory.
type Source struct {
	// Directory is the migrations directory; it is not walked recursively.
	Directory string
	// Normalize makes checksums insensitive to line endings and trailing
	// whitespace, so editor reformatting does not read as drift.
	Normalize bool
}

// NewSource returns a Source over the given directory.
func NewSource(directory string, normalize bool) *Source {
	return &Source{Directory: directory, Normalize: normalize}
}

// ScanResult is the outcome of one directory scan. Malformed filenames are
// excluded from Migrations and surfaced as warnings rather than aborting.
type ScanResult struct {
	Migrations []Migration
	Malformed  []*MalformedFilenameError
}

// ByVersion returns the scanned migration with the given version.
func (r *ScanResult) ByVersion(version string) (Migration, bool) {
	for _, migration := range r.Migrations {
		if migration.Version == version {
			return migration, true
		}
	}
	return Migration{}, false
}

// Scan reads every .cql file in the directory, validates its name against the
// naming grammar and parses it into a Migration. A missing directory yields an
// empty result. Duplicate versions across two files are fatal.
func (s *Source) Scan() (*ScanResult, error) {
	entries, err := os.ReadDir(s.Directory)
	if os.IsNotExist(err) {
		return &ScanResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	result := &ScanResult{}
	seen := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != migrationExtension {
			continue
		}
		matches := filenamePattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			malformed := &MalformedFilenameError{Filename: entry.Name()}
			log.Warnf("Skipping migration file: %v", malformed)
			result.Malformed = append(result.Malformed, malformed)
			continue
		}
		version, slug := matches[1], matches[2]

		if previous, ok := seen[version]; ok {
			return nil, &DuplicateVersionError{Version: version, Files: [2]string{previous, entry.Name()}}
		}
		seen[version] = entry.Name()

		path := filepath.Join(s.Directory, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		up, down, err := parseMigration(path, string(content))
		if err != nil {
			return nil, err
		}
		result.Migrations = append(result.Migrations, Migration{
			Version:        version,
			Description:    strings.ReplaceAll(slug, "_", " "),
			Path:           path,
			Checksum:       Checksum(content, s.Normalize),
			UpStatements:   up,
			DownStatements: down,
		})
	}

	sort.Slice(result.Migrations, func(i, j int) bool {
		return result.Migrations[i].Version < result.Migrations[j].Version
	})
	return result, nil
}

// Checksum computes the hex SHA-256 digest of content. With normalize set,
// line endings are canonicalized to \n and trailing whitespace is stripped
// per line before hashing.
func Checksum(content []byte, normalize bool) string {
	if normalize {
		lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
		for i, line := range lines {
			lines[i] = strings.TrimRight(line, " \t")
		}
		content = []byte(strings.Join(lines, "\n"))
	}
	digest := sha256.Sum256(content)
	return hex.EncodeToString(digest[:])
}

// parseMigration splits a file body on the up and down markers. Text before
// the up marker is commentary and is discarded; a missing down marker yields
// an empty down block. Statement bodies are opaque and passed through
// verbatim, split only on ';'.
func parseMigration(path, content string) (up, down []string, err error) {
	var upLines, downLines []string
	var section *[]string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, upMarker):
			section = &upLines
			continue
		case strings.HasPrefix(trimmed, downMarker):
			section = &downLines
			continue
		}
		if section != nil {
			*section = append(*section, line)
		}
	}

	up = splitStatements(strings.Join(upLines, "\n"))
	down = splitStatements(strings.Join(downLines, "\n"))
	if len(up) == 0 {
		return nil, nil, &InvalidFormatError{Path: path, Reason: "no statements in up section"}
	}
	return up, down, nil
}

// splitStatements splits a block on ';', dropping blanks and comment-only
// fragments. It never interprets the statement text itself.
func splitStatements(block string) []string {
	statements := make([]string, 0, 4)
	for _, statement := range strings.Split(block, ";") {
		if isBlank(statement) {
			continue
		}
		statements = append(statements, strings.TrimSpace(statement))
	}
	return statements
}

// isBlank reports whether a fragment contains only whitespace and -- comments.
func isBlank(fragment string) bool {
	for _, line := range strings.Split(fragment, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
			return false
		}
	}
	return true
}

const migrationTemplate = `-- Migration: %s
-- Created at: %s

%s
-- Add your up statements here. Write them idempotently (IF NOT EXISTS style):
-- the tool re-attempts a failed step's statements verbatim on the next run.

%s
-- Add your down statements here (optional).
`

// Create writes a new migration file named from the current UTC time and a
// slug derived from description, and returns its path.
func (s *Source) Create(description string) (string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", fmt.Errorf("migration description cannot be empty")
	}
	if err := os.MkdirAll(s.Directory, 0o755); err != nil {
		return "", fmt.Errorf("creating migrations directory: %w", err)
	}

	version := time.Now().UTC().Format(versionLayout)
	filename := fmt.Sprintf("%s_%s%s", version, slugify(description), migrationExtension)
	path := filepath.Join(s.Directory, filename)
	content := fmt.Sprintf(migrationTemplate, description, time.Now().UTC().Format(time.RFC3339), upMarker, downMarker)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing migration file: %w", err)
	}
	log.Infof("Created migration file %s", filename)
	return path, nil
}

// slugify lowercases the description and replaces every non-alphanumeric run
// with a single underscore.
func slugify(description string) string {
	var builder strings.Builder
	previousUnderscore := false
	for _, r := range strings.ToLower(description) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			builder.WriteRune(r)
			previousUnderscore = false
		} else if !previousUnderscore {
			builder.WriteByte('_')
			previousUnderscore = true
		}
	}
	return strings.Trim(builder.String(), "_")
}
