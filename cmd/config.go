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

package cmd

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/exascience/elactive/active"
	"github.com/exascience/elactive/evidence"
	"github.com/exascience/elactive/internal"
)

type detectConfig struct {
	Detector active.Config   `yaml:"detector"`
	Evidence evidence.Config `yaml:"evidence"`
}

func defaultDetectConfig() detectConfig {
	return detectConfig{
		Detector: active.DefaultConfig(),
		Evidence: evidence.DefaultConfig(),
	}
}

func (config detectConfig) validate() error {
	if err := config.Detector.Validate(); err != nil {
		return fmt.Errorf("detector configuration: %w", err)
	}
	if err := config.Evidence.Validate(); err != nil {
		return fmt.Errorf("evidence configuration: %w", err)
	}
	if config.Detector.MaxBufferSize <= config.Evidence.MaxIndelSize {
		return fmt.Errorf("max-buffer-size %v must be larger than max-indel-size %v",
			config.Detector.MaxBufferSize, config.Evidence.MaxIndelSize)
	}
	return nil
}

// decodeConfig overlays the YAML document in r onto the defaults.
// Unknown fields are rejected. An empty document yields the defaults.
func decodeConfig(r io.Reader) (config detectConfig, err error) {
	config = defaultDetectConfig()
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err = decoder.Decode(&config); err != nil && err != io.EOF {
		return config, err
	}
	return config, config.validate()
}

func loadConfig(filename string) (config detectConfig, err error) {
	if filename == "" {
		config = defaultDetectConfig()
		return config, config.validate()
	}
	f := internal.FileOpen(filename)
	defer func() {
		if nerr := f.Close(); err == nil {
			err = nerr
		}
	}()
	config, err = decodeConfig(f)
	if err != nil {
		err = fmt.Errorf("%v: %w", filename, err)
	}
	return config, err
}
