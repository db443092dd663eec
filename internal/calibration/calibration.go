// Package calibration models the correction parameters applied before the
// krill index is derived. A zero value for any parameter means "use the
// value embedded in the RAW file"; the transform makes that substitution.
package calibration

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"rapidkrill/internal/services"
)

// Calibration is the immutable snapshot active for a processing run.
type Calibration struct {
	Gain       float64 `toml:"gain" json:"gain"`
	SoundSpeed float64 `toml:"sound_speed" json:"sound_speed"`
	Absorption float64 `toml:"absorption" json:"absorption"`
}

// IsZero reports whether no correction is configured at all.
func (c Calibration) IsZero() bool {
	return c.Gain == 0 && c.SoundSpeed == 0 && c.Absorption == 0
}

// Merge returns a copy of c with any zero field replaced by the
// corresponding field of other. Inline config overrides win over the
// calibration file this way.
func (c Calibration) Merge(other Calibration) Calibration {
	merged := c
	if merged.Gain == 0 {
		merged.Gain = other.Gain
	}
	if merged.SoundSpeed == 0 {
		merged.SoundSpeed = other.SoundSpeed
	}
	if merged.Absorption == 0 {
		merged.Absorption = other.Absorption
	}
	return merged
}

func (c Calibration) String() string {
	return fmt.Sprintf("gain=%.2fdB soundspeed=%.1fm/s absorption=%.4fdB/m",
		c.Gain, c.SoundSpeed, c.Absorption)
}

type calFile struct {
	Calibration Calibration `toml:"calibration"`
}

// LoadFile reads a TOML calibration file. A missing path is a configuration
// error: the operator explicitly pointed at a file that is not there.
func LoadFile(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Calibration{}, services.Wrap(services.ErrNotFound,
				"calibration", "load", fmt.Sprintf("calibration file %s does not exist", path), nil)
		}
		return Calibration{}, fmt.Errorf("read calibration file: %w", err)
	}

	var parsed calFile
	if err := toml.Unmarshal(data, &parsed); err != nil {
		// Tolerate flat files without the [calibration] table.
		var flat Calibration
		if flatErr := toml.Unmarshal(data, &flat); flatErr == nil {
			return flat, nil
		}
		return Calibration{}, services.Wrap(services.ErrConfiguration,
			"calibration", "parse", path, err)
	}
	return parsed.Calibration, nil
}

// Resolve builds the active calibration from an optional file plus inline
// overrides. Inline values win; file values fill the gaps.
func Resolve(filePath string, inline Calibration) (Calibration, error) {
	if filePath == "" {
		return inline, nil
	}
	fromFile, err := LoadFile(filePath)
	if err != nil {
		return Calibration{}, err
	}
	return inline.Merge(fromFile), nil
}
