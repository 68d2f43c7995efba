package extractor

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/activecm/rcr/config"
	"github.com/activecm/rcr/util"

	"github.com/spf13/afero"
)

var ErrMissingLogFiles = errors.New("unable to find log files listed in input_data")

// ResolveLogFiles locates each log file named in input_data under the given
// directory and returns a map from configured name to resolved path. Zeek
// rotates logs into gzip, so when the exact name is not on disk the same name
// with a .gz suffix is accepted in its place. An empty log file still
// resolves; parsing it later produces no records. Any file that cannot be
// found at all makes the whole resolution fail.
func ResolveLogFiles(afs afero.Fs, cfg *config.Config, logDir string) (map[string]string, error) {
	var names []string
	for name := range cfg.InputData {
		names = append(names, name)
	}
	slices.Sort(names)

	resolved := make(map[string]string, len(names))
	var missing []string

	for _, name := range names {
		path, err := resolveLogFile(afs, filepath.Join(logDir, name))
		if err != nil {
			missing = append(missing, fmt.Sprintf("%s (%v)", name, err))
			continue
		}
		resolved[name] = path
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingLogFiles, strings.Join(missing, ", "))
	}

	return resolved, nil
}

// resolveLogFile checks for the log at its exact path, then falls back to the
// gzipped variant
func resolveLogFile(afs afero.Fs, path string) (string, error) {
	err := util.ValidateFile(afs, path)
	if err == nil || errors.Is(err, util.ErrFileIsEmtpy) {
		return path, nil
	}

	if errors.Is(err, util.ErrFileDoesNotExist) && !strings.HasSuffix(path, ".gz") {
		gzErr := util.ValidateFile(afs, path+".gz")
		if gzErr == nil || errors.Is(gzErr, util.ErrFileIsEmtpy) {
			return path + ".gz", nil
		}
	}

	return "", err
}
