package engine

import (
	"testing"

	"github.com/intellimaint/intellimaint/model"
)

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		name                string
		short, medium, long int
		want                model.TrendState
	}{
		{"all equal", 70, 70, 70, model.TrendStable},
		{"small wiggle", 72, 69, 70, model.TrendStable},
		{"confirmed sharp decline", 50, 60, 70, model.TrendSharpDecline},
		{"unconfirmed short drop", 50, 70, 70, model.TrendDeclining},
		{"moderate decline", 63, 68, 70, model.TrendDeclining},
		{"confirmed recovery", 90, 80, 70, model.TrendRecovering},
		{"unconfirmed short spike", 90, 70, 70, model.TrendImproving},
		{"moderate improvement", 77, 72, 70, model.TrendImproving},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyTrend(tt.short, tt.medium, tt.long); got != tt.want {
				t.Errorf("classifyTrend(%d, %d, %d) = %v, want %v",
					tt.short, tt.medium, tt.long, got, tt.want)
			}
		})
	}
}
