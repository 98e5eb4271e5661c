// elactive: a tool for detecting active regions in SAM/BAM files.
// Copyright (c) 2020-2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elactive/blob/master/LICENSE.txt>.

package evidence

import "fmt"

// Config holds the thresholds for collecting evidence.
type Config struct {
	// MaxIndelSize is the largest indel recorded as a candidate.
	MaxIndelSize int32 `yaml:"max-indel-size"`
	// MinMapQ is the minimum mapping quality of a read.
	MinMapQ uint8 `yaml:"min-mapq"`
	// A position is a candidate variant in a sample when at least
	// MinCandidateCount reads, or at least MinCandidateFraction of
	// the covering reads, show an anomaly there.
	MinCandidateCount    int32   `yaml:"min-candidate-count"`
	MinCandidateFraction float64 `yaml:"min-candidate-fraction"`
}

// DefaultConfig returns the default evidence configuration.
func DefaultConfig() Config {
	return Config{
		MaxIndelSize:         50,
		MinMapQ:              10,
		MinCandidateCount:    9,
		MinCandidateFraction: 0.2,
	}
}

// Validate checks the configuration for consistency.
func (config Config) Validate() error {
	switch {
	case config.MaxIndelSize < 1:
		return fmt.Errorf("invalid max-indel-size %v", config.MaxIndelSize)
	case config.MinCandidateCount < 1:
		return fmt.Errorf("invalid min-candidate-count %v", config.MinCandidateCount)
	case config.MinCandidateFraction < 0 || config.MinCandidateFraction > 1:
		return fmt.Errorf("invalid min-candidate-fraction %v", config.MinCandidateFraction)
	}
	return nil
}
