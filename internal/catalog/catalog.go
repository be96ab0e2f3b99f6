// Package catalog loads the reward catalog and the award rate card from a YAML file and
// applies them through the engine.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MarkoPoloResearchLab/communitypoints/pkg/points"
	"gopkg.in/yaml.v3"
)

// SystemMemberID is the identity under which catalog changes are recorded.
const SystemMemberID = "system"

// Catalog is the file form of rewards and rate card entries.
type Catalog struct {
	Rewards  []RewardItem   `yaml:"rewards"`
	RateCard []RateCardItem `yaml:"rate_card"`
}

// RewardItem is one reward in the catalog file. Available defaults to true.
type RewardItem struct {
	Code      string `yaml:"code"`
	Label     string `yaml:"label"`
	Cost      int64  `yaml:"cost"`
	Available *bool  `yaml:"available"`
}

// RateCardItem is one named award amount in the catalog file.
type RateCardItem struct {
	Alias  string `yaml:"alias"`
	Name   string `yaml:"name"`
	Points int64  `yaml:"points"`
}

// Applier is the slice of the engine that catalog loading needs.
type Applier interface {
	UpsertReward(ctx context.Context, caller points.Caller, reward points.Reward) (points.Reward, error)
	UpsertRateCardEntry(ctx context.Context, caller points.Caller, entry points.RateCardEntry) (points.RateCardEntry, error)
}

// LoadFile reads and validates a catalog file.
func LoadFile(path string) (Catalog, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(bytes.NewReader(contents))
}

// Parse decodes a catalog and rejects unknown keys, duplicate codes and non-positive amounts.
func Parse(reader io.Reader) (Catalog, error) {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	var parsed Catalog
	if err := decoder.Decode(&parsed); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := parsed.validate(); err != nil {
		return Catalog{}, err
	}
	return parsed, nil
}

// Apply upserts every reward and rate card entry as the system admin.
func (catalog Catalog) Apply(ctx context.Context, applier Applier) error {
	caller, err := points.NewCaller(SystemMemberID, "System", true)
	if err != nil {
		return err
	}
	rewards, err := catalog.rewards()
	if err != nil {
		return err
	}
	for _, reward := range rewards {
		if _, err := applier.UpsertReward(ctx, caller, reward); err != nil {
			return fmt.Errorf("catalog: reward %s: %w", reward.Code, err)
		}
	}
	entries, err := catalog.rateCard()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if _, err := applier.UpsertRateCardEntry(ctx, caller, entry); err != nil {
			return fmt.Errorf("catalog: rate card %s: %w", entry.Alias, err)
		}
	}
	return nil
}

func (catalog Catalog) validate() error {
	if _, err := catalog.rewards(); err != nil {
		return err
	}
	_, err := catalog.rateCard()
	return err
}

func (catalog Catalog) rewards() ([]points.Reward, error) {
	seen := make(map[string]struct{}, len(catalog.Rewards))
	rewards := make([]points.Reward, 0, len(catalog.Rewards))
	for index, item := range catalog.Rewards {
		code, err := points.NewRewardCode(item.Code)
		if err != nil {
			return nil, fmt.Errorf("catalog: rewards[%d]: %w", index, err)
		}
		if _, duplicate := seen[code.String()]; duplicate {
			return nil, fmt.Errorf("catalog: rewards[%d]: duplicate code %s", index, code)
		}
		seen[code.String()] = struct{}{}
		cost, err := points.NewPositivePoints(item.Cost)
		if err != nil {
			return nil, fmt.Errorf("catalog: reward %s: %w", code, err)
		}
		available := true
		if item.Available != nil {
			available = *item.Available
		}
		rewards = append(rewards, points.Reward{Code: code, Label: item.Label, Cost: cost, Available: available})
	}
	return rewards, nil
}

func (catalog Catalog) rateCard() ([]points.RateCardEntry, error) {
	seen := make(map[string]struct{}, len(catalog.RateCard))
	entries := make([]points.RateCardEntry, 0, len(catalog.RateCard))
	for index, item := range catalog.RateCard {
		alias, err := points.NewRateCardAlias(item.Alias)
		if err != nil {
			return nil, fmt.Errorf("catalog: rate_card[%d]: %w", index, err)
		}
		if _, duplicate := seen[alias.String()]; duplicate {
			return nil, fmt.Errorf("catalog: rate_card[%d]: duplicate alias %s", index, alias)
		}
		seen[alias.String()] = struct{}{}
		amount, err := points.NewPositivePoints(item.Points)
		if err != nil {
			return nil, fmt.Errorf("catalog: rate card %s: %w", alias, err)
		}
		entries = append(entries, points.RateCardEntry{Alias: alias, Name: item.Name, Points: amount})
	}
	return entries, nil
}
