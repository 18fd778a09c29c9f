package manifest

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/jingkaihe/curate/pkg/logger"
)

// Update applies fn to the manifest at path while holding a file lock, so
// concurrent updates from parallel sync jobs do not lose writes. The file
// must exist and be valid both before and after fn runs.
func Update(ctx context.Context, path string, fn func(*Manifest) error) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "failed to open manifest '%s'", path)
	}

	return lockedfile.Transform(path, func(data []byte) ([]byte, error) {
		if err := ValidateBytes(data); err != nil {
			return nil, err
		}
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, errors.Wrap(err, "failed to decode manifest")
		}

		if err := fn(&m); err != nil {
			return nil, err
		}

		out, err := Marshal(&m)
		if err != nil {
			return nil, err
		}
		if err := ValidateBytes(out); err != nil {
			return nil, errors.Wrap(err, "updated manifest is invalid")
		}
		logger.G(ctx).WithField("path", path).Debug("updated sync manifest")
		return out, nil
	})
}
