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

// Package catalog holds the pattern tables used to recognise subscription
// emails: intent keywords, known services, currency patterns and billing
// cycle patterns.
//
// Every table is an ordered slice. Match priority is declaration order, so
// the tables must never be turned into maps.
package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/subtrack/ingestion/internal/models"
)

// Service is a known subscription service and the substrings that identify it.
type Service struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// Currency describes how to find an amount in one currency and convert it
// to reference units. Pattern must contain exactly one capture group for
// the numeric amount.
type Currency struct {
	Code       string  `yaml:"code"`
	Pattern    string  `yaml:"pattern"`
	Multiplier float64 `yaml:"multiplier"`
}

// CyclePattern maps a billing cycle to the pattern that detects it.
type CyclePattern struct {
	Cycle   models.BillingCycle `yaml:"cycle"`
	Pattern string              `yaml:"pattern"`
}

// Catalog is the uncompiled, serialisable form of the pattern tables.
type Catalog struct {
	Keywords  []string       `yaml:"keywords"`
	Services  []Service      `yaml:"services"`
	Reference Currency       `yaml:"reference"`
	Foreign   []Currency     `yaml:"foreign"`
	Cycles    []CyclePattern `yaml:"cycles"`
}

// Default returns the built-in catalog. The reference currency is AED; the
// foreign multipliers are fixed approximations, not live rates.
func Default() Catalog {
	return Catalog{
		Keywords: []string{
			"subscription",
			"subscribe",
			"renewal",
			"payment",
			"invoice",
			"receipt",
			"billing",
			"charged",
			"premium",
			"plan",
			"membership",
		},
		Services: []Service{
			{Name: "Netflix", Aliases: []string{"netflix", "netflix.com"}},
			{Name: "Spotify", Aliases: []string{"spotify", "spotify.com"}},
			{Name: "Apple Music", Aliases: []string{"apple music", "music.apple.com"}},
			{Name: "YouTube Premium", Aliases: []string{"youtube premium", "youtube.com"}},
			{Name: "Amazon Prime", Aliases: []string{"amazon prime", "prime video"}},
			{Name: "Disney+", Aliases: []string{"disney+", "disneyplus"}},
			{Name: "HBO Max", Aliases: []string{"hbo max", "hbomax"}},
			{Name: "Adobe", Aliases: []string{"adobe", "creative cloud"}},
			{Name: "Microsoft 365", Aliases: []string{"microsoft 365", "office 365"}},
			{Name: "iCloud", Aliases: []string{"icloud", "icloud storage"}},
			{Name: "Dropbox", Aliases: []string{"dropbox"}},
			{Name: "Google One", Aliases: []string{"google one", "google storage"}},
			{Name: "GitHub", Aliases: []string{"github", "github.com"}},
			{Name: "Zoom", Aliases: []string{"zoom", "zoom.us"}},
		},
		Reference: Currency{Code: "AED", Pattern: `(?i)AED\s*(\d+(?:\.\d{2})?)`, Multiplier: 1},
		// Illustrative fixed rates to AED, not live quotes.
		Foreign: []Currency{
			{Code: "USD", Pattern: `\$(\d+(?:\.\d{2})?)`, Multiplier: 3.67},
			{Code: "EUR", Pattern: `€(\d+(?:\.\d{2})?)`, Multiplier: 4.00},
			{Code: "GBP", Pattern: `£(\d+(?:\.\d{2})?)`, Multiplier: 4.65},
		},
		Cycles: []CyclePattern{
			{Cycle: models.CycleMonthly, Pattern: `(?i)month(?:ly)?`},
			{Cycle: models.CycleQuarterly, Pattern: `(?i)quarter(?:ly)?|3\s*month`},
			{Cycle: models.CycleYearly, Pattern: `(?i)year(?:ly)?|annual(?:ly)?|12\s*month`},
			{Cycle: models.CycleOneTime, Pattern: `(?i)one[- ]time|single\s*payment`},
		},
	}
}

// CompiledCurrency is a Currency with its pattern compiled.
type CompiledCurrency struct {
	Code       string
	Multiplier float64
	re         *regexp.Regexp
}

// FindAmount returns the first captured numeric text, if the pattern matches.
func (c CompiledCurrency) FindAmount(text string) (string, bool) {
	m := c.re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// CompiledCycle is a CyclePattern with its pattern compiled.
type CompiledCycle struct {
	Cycle models.BillingCycle
	re    *regexp.Regexp
}

// Match reports whether the cycle pattern occurs in text.
func (c CompiledCycle) Match(text string) bool {
	return c.re.MatchString(text)
}

// Compiled is the read-only, ready-to-match form of a Catalog. It is safe
// for concurrent use.
type Compiled struct {
	Keywords  []string
	Services  []Service
	Reference CompiledCurrency
	Foreign   []CompiledCurrency
	Cycles    []CompiledCycle
}

// Compile validates the catalog and compiles every pattern. Keywords and
// aliases are case-folded once here so matching only folds the input.
func (c Catalog) Compile() (*Compiled, error) {
	if len(c.Keywords) == 0 {
		return nil, fmt.Errorf("catalog has no keywords")
	}

	out := &Compiled{
		Keywords: make([]string, 0, len(c.Keywords)),
		Services: make([]Service, 0, len(c.Services)),
	}

	for _, k := range c.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out.Keywords = append(out.Keywords, k)
	}

	for _, s := range c.Services {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("catalog service with empty name")
		}
		svc := Service{Name: s.Name}
		for _, a := range s.Aliases {
			if a = strings.ToLower(a); a != "" {
				svc.Aliases = append(svc.Aliases, a)
			}
		}
		out.Services = append(out.Services, svc)
	}

	ref, err := compileCurrency(c.Reference)
	if err != nil {
		return nil, fmt.Errorf("reference currency: %w", err)
	}
	out.Reference = ref

	for _, fc := range c.Foreign {
		cc, err := compileCurrency(fc)
		if err != nil {
			return nil, fmt.Errorf("foreign currency %s: %w", fc.Code, err)
		}
		out.Foreign = append(out.Foreign, cc)
	}

	for _, cp := range c.Cycles {
		if _, err := models.ParseBillingCycle(string(cp.Cycle)); err != nil {
			return nil, err
		}
		re, err := regexp.Compile(cp.Pattern)
		if err != nil {
			return nil, fmt.Errorf("cycle %s pattern: %w", cp.Cycle, err)
		}
		out.Cycles = append(out.Cycles, CompiledCycle{Cycle: cp.Cycle, re: re})
	}

	return out, nil
}

func compileCurrency(c Currency) (CompiledCurrency, error) {
	re, err := regexp.Compile(c.Pattern)
	if err != nil {
		return CompiledCurrency{}, fmt.Errorf("compile pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return CompiledCurrency{}, fmt.Errorf("pattern %q has no amount capture group", c.Pattern)
	}
	if c.Multiplier <= 0 {
		return CompiledCurrency{}, fmt.Errorf("multiplier must be positive, got %v", c.Multiplier)
	}
	return CompiledCurrency{Code: c.Code, Multiplier: c.Multiplier, re: re}, nil
}

// MustDefault compiles the built-in catalog, panicking if it is invalid.
func MustDefault() *Compiled {
	c, err := Default().Compile()
	if err != nil {
		panic(fmt.Sprintf("default catalog: %v", err))
	}
	return c
}
