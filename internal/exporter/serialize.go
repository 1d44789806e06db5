package exporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/colex-db/colex/internal/domain"
	"github.com/colex-db/colex/internal/domain/export"
)

// serialize renders objects into the requested format.
func serialize(objects []domain.Object, format export.Format, opts export.Options) (string, error) {
	records := buildRecords(objects, opts)
	if format == export.FormatCSV {
		return serializeCSV(records)
	}
	return serializeJSON(records)
}

// buildRecords projects objects into flat or nested maps per the options.
func buildRecords(objects []domain.Object, opts export.Options) []map[string]any {
	records := make([]map[string]any, len(objects))
	for i := range objects {
		records[i] = buildRecord(&objects[i], opts)
	}
	return records
}

func buildRecord(obj *domain.Object, opts export.Options) map[string]any {
	rec := map[string]any{"uuid": obj.UUID}

	if opts.IncludeProperties {
		for k, v := range obj.Properties {
			if k == "uuid" {
				continue
			}
			rec[k] = v
		}
	}

	if opts.IncludeMetadata {
		md := obj.Metadata
		if md.CreationTime != "" {
			rec["createdAt"] = md.CreationTime
		}
		if md.LastUpdateTime != "" {
			rec["updatedAt"] = md.LastUpdateTime
		}
		if md.Distance != nil {
			rec["distance"] = *md.Distance
		}
		if md.Certainty != nil {
			rec["certainty"] = *md.Certainty
		}
		if md.Score != nil {
			rec["score"] = *md.Score
		}
	}

	if opts.IncludeVectors && len(obj.Vector) > 0 {
		rec["vector"] = obj.Vector
	}

	if opts.FlattenNested {
		rec = flatten(rec)
	}
	return rec
}

// flatten expands nested maps into dot-path keys (author.name,
// author.profile.bio, ...). Arrays are kept intact.
func flatten(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	flattenInto(out, "", rec)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = v
	}
}

// serializeJSON pretty-prints with stable 2-space indentation for
// diffability.
func serializeJSON(records []map[string]any) (string, error) {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal records: %w", err)
	}
	return string(data), nil
}

// serializeCSV writes the header from the union of keys across all records
// (not just the first, to avoid dropped columns) and one row per record.
// An empty record list yields an empty string.
func serializeCSV(records []map[string]any) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	header := unionKeys(records)

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, len(header))
	for _, rec := range records {
		for i, key := range header {
			row[i] = cellString(rec[key])
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return sb.String(), nil
}

// unionKeys returns the union of keys across all records, uuid first, the
// rest sorted for a stable column order.
func unionKeys(records []map[string]any) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		if k != "uuid" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	if _, ok := seen["uuid"]; ok {
		return append([]string{"uuid"}, keys...)
	}
	return keys
}

// cellString renders one CSV cell. Arrays join with ";" to avoid colliding
// with the delimiter; nested objects are JSON-stringified. Quoting and
// escaping are handled by encoding/csv.
func cellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case bool:
		return strconv.FormatBool(c)
	case float64:
		return strconv.FormatFloat(c, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(c), 'g', -1, 32)
	case int:
		return strconv.Itoa(c)
	case int64:
		return strconv.FormatInt(c, 10)
	case []any:
		parts := make([]string, len(c))
		for i, e := range c {
			parts[i] = cellString(e)
		}
		return strings.Join(parts, ";")
	case []string:
		return strings.Join(c, ";")
	case []float32:
		parts := make([]string, len(c))
		for i, e := range c {
			parts[i] = cellString(e)
		}
		return strings.Join(parts, ";")
	case []float64:
		parts := make([]string, len(c))
		for i, e := range c {
			parts[i] = cellString(e)
		}
		return strings.Join(parts, ";")
	case map[string]any:
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Sprintf("%v", c)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", v)
	}
}
