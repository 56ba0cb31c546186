package character

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func baseProfile() Profile {
	return Profile{
		Name:                    "Ahmed",
		Age:                     "40",
		Role:                    "merchant",
		PhysicalCharacteristics: []string{"tall"},
		Personality:             []string{"kind"},
		Events:                  []string{"arrives in Cairo"},
		Relations:               []string{"Fatima: wife"},
		Aliases:                 []string{"Abu Mohammed"},
	}
}

func TestMergeEmptyUpdateIsIdentity(t *testing.T) {
	for _, existing := range []Profile{baseProfile(), {Name: "Fatima"}} {
		got, err := Merge(existing, ProfileUpdate{Name: existing.Name}, existing.Name)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if diff := cmp.Diff(existing, got); diff != "" {
			t.Fatalf("expected unchanged profile (-want +got):\n%s", diff)
		}
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name    string
		update  ProfileUpdate
		rawName string
		want    func(p *Profile)
	}{
		{
			name:    "scalars replaced only when non-empty",
			update:  ProfileUpdate{Name: "Ahmed", Age: "  ", Role: "judge"},
			rawName: "Ahmed",
			want:    func(p *Profile) { p.Role = "judge" },
		},
		{
			name:    "null-like scalars keep the old value",
			update:  ProfileUpdate{Name: "Ahmed", Age: "None", Role: "null"},
			rawName: "Ahmed",
			want:    func(p *Profile) {},
		},
		{
			name: "lists are unioned without duplicates",
			update: ProfileUpdate{
				Name:        "Ahmed",
				Personality: []string{"kind", " generous ", ""},
				Events:      []string{"arrives in Cairo", "marries Fatima"},
			},
			rawName: "Ahmed",
			want: func(p *Profile) {
				p.Personality = []string{"kind", "generous"}
				p.Events = []string{"arrives in Cairo", "marries Fatima"}
			},
		},
		{
			name:    "union is case sensitive",
			update:  ProfileUpdate{Name: "Ahmed", PhysicalCharacteristics: []string{"Tall"}},
			rawName: "Ahmed",
			want:    func(p *Profile) { p.PhysicalCharacteristics = []string{"tall", "Tall"} },
		},
		{
			name:    "raw name becomes an alias",
			update:  ProfileUpdate{Name: "The Merchant"},
			rawName: "The Merchant",
			want:    func(p *Profile) { p.Aliases = []string{"Abu Mohammed", "The Merchant"} },
		},
		{
			name:    "canonical name never becomes an alias",
			update:  ProfileUpdate{Name: "Ahmed", Aliases: []string{"Ahmed", "Abu Mohammed"}},
			rawName: "Ahmed",
			want:    func(p *Profile) {},
		},
		{
			name: "relations overwrite by other name",
			update: ProfileUpdate{
				Name:      "Ahmed",
				Relations: []string{" Fatima :  former wife", "Omar: brother", "no colon here", ": empty"},
			},
			rawName: "Ahmed",
			want: func(p *Profile) {
				p.Relations = []string{"Fatima: former wife", "Omar: brother"}
			},
		},
		{
			name:    "full width colon",
			update:  ProfileUpdate{Name: "Ahmed", Relations: []string{"سلمى： ابنة"}},
			rawName: "Ahmed",
			want:    func(p *Profile) { p.Relations = []string{"Fatima: wife", "سلمى: ابنة"} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := baseProfile()
			tt.want(&want)

			got, err := Merge(baseProfile(), tt.update, tt.rawName)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("unexpected merge result (-want +got):\n%s", diff)
			}
			if got.Name != "Ahmed" {
				t.Fatalf("expected name to stay Ahmed, got %q", got.Name)
			}
		})
	}
}

func TestMergeRejectsMissingName(t *testing.T) {
	existing := baseProfile()
	got, err := Merge(existing, ProfileUpdate{Name: "  ", Role: "judge"}, "x")

	var invalid *InvalidProfileUpdateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidProfileUpdateError, got %v", err)
	}
	if diff := cmp.Diff(existing, got); diff != "" {
		t.Fatalf("expected existing profile back (-want +got):\n%s", diff)
	}
}

func TestMergeDoesNotAliasInput(t *testing.T) {
	existing := baseProfile()
	existing.Events = make([]string, 1, 8)
	existing.Events[0] = "arrives in Cairo"

	got, err := Merge(existing, ProfileUpdate{Name: "Ahmed", Events: []string{"leaves"}}, "Ahmed")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got.Events[0] = "changed"
	if existing.Events[0] != "arrives in Cairo" {
		t.Fatalf("expected input to be untouched, got %q", existing.Events[0])
	}
}

func TestMergeIsMonotonic(t *testing.T) {
	updates := []ProfileUpdate{
		{Name: "Ahmed", Events: []string{"a", "b"}, Relations: []string{"Fatima: wife"}},
		{Name: "Abu Mohammed", Events: []string{"b"}, Personality: []string{"stern"}},
		{Name: "Ahmed", Relations: []string{"Fatima: widow", "Omar: son"}, Aliases: []string{"the trader"}},
		{Name: "Ahmed"},
		{Name: "Ahmed", PhysicalCharacteristics: []string{"scar"}, Events: []string{"a", "c"}},
	}

	p := Profile{Name: "Ahmed"}
	for i, u := range updates {
		next, err := Merge(p, u, u.Name)
		if err != nil {
			t.Fatalf("update %d: expected no error, got %v", i, err)
		}
		fields := []struct {
			name          string
			before, after []string
		}{
			{"physical", p.PhysicalCharacteristics, next.PhysicalCharacteristics},
			{"personality", p.Personality, next.Personality},
			{"events", p.Events, next.Events},
			{"relations", p.Relations, next.Relations},
			{"aliases", p.Aliases, next.Aliases},
		}
		for _, f := range fields {
			if len(f.after) < len(f.before) {
				t.Fatalf("update %d: expected %s to grow, got %d -> %d", i, f.name, len(f.before), len(f.after))
			}
		}
		p = next
	}

	if got := RelationMap(p)["Fatima"]; got != "widow" {
		t.Fatalf("expected last relation kind widow, got %q", got)
	}
	if len(p.Relations) != 2 {
		t.Fatalf("expected 2 relations, got %v", p.Relations)
	}
}
