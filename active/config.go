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

package active

import (
	"fmt"

	"github.com/exascience/elactive/align"
)

// Config holds the parameters of a Detector.
type Config struct {
	// MaxBufferSize is the size of the sliding window in positions.
	// It must be larger than the maximum read length plus the
	// maximum indel size.
	MaxBufferSize int32 `yaml:"max-buffer-size"`
	// Variants at most this far apart join the same active region.
	MaxDistanceBetweenTwoVariants int32 `yaml:"max-distance-between-two-variants"`
	// MinNumVariantsPerRegion is the minimum number of variant
	// positions in an active region.
	MinNumVariantsPerRegion int32 `yaml:"min-num-variants-per-region"`
	// MaxRegionExtension bounds how far a region is extended beyond
	// its last variant to cover a trailing indel or soft clip.
	MaxRegionExtension int32 `yaml:"max-region-extension"`
	// HaplotypePadding is the number of reference bases added on both
	// sides of a region to build candidate haplotypes.
	HaplotypePadding int32 `yaml:"haplotype-padding"`
	// MaxHaplotypes is the maximum number of candidate haplotypes per
	// region, including the reference haplotype.
	MaxHaplotypes int `yaml:"max-haplotypes"`
	// A position is polymorphic in a sample when at least
	// MinPolySiteCount reads and at least MinPolySiteFraction of the
	// covering reads observe a non-reference allele.
	MinPolySiteCount    int32   `yaml:"min-poly-site-count"`
	MinPolySiteFraction float64 `yaml:"min-poly-site-fraction"`
	// Scores and Band configure the haplotype aligner.
	Scores align.Scores `yaml:"scores"`
	Band   int32        `yaml:"band"`
	// ParallelAlignment aligns the reads of a region in parallel.
	ParallelAlignment bool `yaml:"parallel-alignment"`
}

// The defaults of the region boundary tracker.
const (
	MaxBufferSize                 = 1000
	MaxDistanceBetweenTwoVariants = 13
	MinNumVariantsPerRegion       = 2
)

// DefaultConfig returns the default detector configuration.
func DefaultConfig() Config {
	return Config{
		MaxBufferSize:                 MaxBufferSize,
		MaxDistanceBetweenTwoVariants: MaxDistanceBetweenTwoVariants,
		MinNumVariantsPerRegion:       MinNumVariantsPerRegion,
		MaxRegionExtension:            10,
		HaplotypePadding:              10,
		MaxHaplotypes:                 8,
		MinPolySiteCount:              2,
		MinPolySiteFraction:           0.2,
		Scores:                        align.DefaultScores(),
		Band:                          align.DefaultBand,
		ParallelAlignment:             true,
	}
}

// Validate checks the configuration for consistency.
func (config Config) Validate() error {
	switch {
	case config.MaxBufferSize < 1:
		return fmt.Errorf("invalid max-buffer-size %v", config.MaxBufferSize)
	case config.MaxDistanceBetweenTwoVariants < 1:
		return fmt.Errorf("invalid max-distance-between-two-variants %v", config.MaxDistanceBetweenTwoVariants)
	case config.MinNumVariantsPerRegion < 1:
		return fmt.Errorf("invalid min-num-variants-per-region %v", config.MinNumVariantsPerRegion)
	case config.MaxRegionExtension < 0 || config.MaxRegionExtension > config.MaxDistanceBetweenTwoVariants:
		return fmt.Errorf("max-region-extension %v must be between 0 and max-distance-between-two-variants %v",
			config.MaxRegionExtension, config.MaxDistanceBetweenTwoVariants)
	case config.HaplotypePadding < 0:
		return fmt.Errorf("invalid haplotype-padding %v", config.HaplotypePadding)
	case config.MaxHaplotypes < 1 || config.MaxHaplotypes > 255:
		return fmt.Errorf("max-haplotypes %v must be between 1 and 255", config.MaxHaplotypes)
	case config.MinPolySiteCount < 1:
		return fmt.Errorf("invalid min-poly-site-count %v", config.MinPolySiteCount)
	case config.MinPolySiteFraction < 0 || config.MinPolySiteFraction > 1:
		return fmt.Errorf("invalid min-poly-site-fraction %v", config.MinPolySiteFraction)
	}
	return nil
}
