// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML catalog file. Any top-level section present in the
// file replaces the corresponding default table; absent sections keep
// the built-in values.
func Load(path string) (*Compiled, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document over the defaults and compiles it.
func Parse(data []byte) (*Compiled, error) {
	var overlay struct {
		Keywords  []string       `yaml:"keywords"`
		Services  []Service      `yaml:"services"`
		Reference *Currency      `yaml:"reference"`
		Foreign   []Currency     `yaml:"foreign"`
		Cycles    []CyclePattern `yaml:"cycles"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse catalog YAML: %w", err)
	}

	c := Default()
	if overlay.Keywords != nil {
		c.Keywords = overlay.Keywords
	}
	if overlay.Services != nil {
		c.Services = overlay.Services
	}
	if overlay.Reference != nil {
		c.Reference = *overlay.Reference
	}
	if overlay.Foreign != nil {
		c.Foreign = overlay.Foreign
	}
	if overlay.Cycles != nil {
		c.Cycles = overlay.Cycles
	}

	compiled, err := c.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile catalog: %w", err)
	}

	return compiled, nil
}
