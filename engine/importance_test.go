package engine

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/intellimaint/intellimaint/model"
	"github.com/intellimaint/intellimaint/store"
)

func TestImportanceMatcher(t *testing.T) {
	repos := store.NewMemory().Repositories()
	ctx := context.Background()
	if err := repos.TagImportance.Save(ctx, []model.TagImportanceRule{
		{Pattern: "*_temp", Importance: model.ImportanceMajor, Priority: 10, Enabled: true},
		{Pattern: "main_*", Importance: model.ImportanceCritical, Priority: 20, Enabled: true},
		{Pattern: "debug_*", Importance: model.ImportanceTrivial, Priority: 5, Enabled: false},
	}); err != nil {
		t.Fatal(err)
	}

	m := NewImportanceMatcher(repos.TagImportance, model.ImportanceMinor, zap.NewNop())
	if err := m.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		tagID string
		want  model.Importance
	}{
		{"main_temp", model.ImportanceCritical}, // higher priority wins on double match
		{"motor_temp", model.ImportanceMajor},
		{"debug_flag", model.ImportanceMinor}, // disabled rule falls back to the default
		{"unmatched", model.ImportanceMinor},
		{"MAIN_PRESSURE", model.ImportanceCritical}, // matching is case-insensitive
	}
	for _, tt := range tests {
		if got := m.Lookup(tt.tagID); got != tt.want {
			t.Errorf("Lookup(%q) = %v, want %v", tt.tagID, got, tt.want)
		}
	}
}

func TestImportanceMatcherBeforeRefresh(t *testing.T) {
	repos := store.NewMemory().Repositories()
	m := NewImportanceMatcher(repos.TagImportance, model.ImportanceMajor, zap.NewNop())
	if got := m.Lookup("anything"); got != model.ImportanceMajor {
		t.Errorf("Lookup before Refresh = %v, want the default", got)
	}
}
