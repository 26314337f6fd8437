package assets

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// List returns every committed asset owned by ref, ordered by relative
// path. A missing entity directory yields an empty list.
func (s *Store) List(ref EntityRef) ([]CommittedAsset, error) {
	kind, ok := ParseEntityKind(string(ref.Kind))
	if !ok {
		return nil, validationError(CodeInvalidEntity, "unknown entity type %q", ref.Kind)
	}
	if strings.TrimSpace(ref.ID) == "" {
		return nil, missingEntityError("entityId is required")
	}
	if !ValidEntityID(ref.ID) {
		return nil, validationError(CodeInvalidEntity, "invalid entityId %q", ref.ID)
	}

	entityDir := filepath.Join(s.root, kind.Plural(), ref.ID)

	var out []CommittedAsset
	err := filepath.WalkDir(entityDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if isNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		out = append(out, CommittedAsset{
			RelativePath: rel,
			PublicURL:    s.URL(rel),
			Size:         info.Size(),
			MimeType:     ContentTypeFor(d.Name()),
			OriginalName: OriginalNameFromGenerated(path.Base(rel)),
		})
		return nil
	})
	if err != nil {
		return nil, storageError("failed to list assets", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RelativePath < out[j].RelativePath })
	return out, nil
}

// OriginalNameFromGenerated recovers the sanitized client filename from a
// generated name of the form {millis}-{token}-{name}.
func OriginalNameFromGenerated(generated string) string {
	parts := strings.SplitN(generated, "-", 3)
	if len(parts) != 3 {
		return generated
	}
	return parts[2]
}
