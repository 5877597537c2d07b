package emotion

import "testing"

func TestClassifyBilingualGreetingIsHappy(t *testing.T) {
	result := Classify("Hi there! ¡Qué bueno verte!")
	if result.Label != Happy {
		t.Fatalf("expected happy emotion, got %s", result.Label)
	}
	if result.Intensity <= neutralIntensity || result.Intensity > 1 {
		t.Fatalf("intensity out of range: %f", result.Intensity)
	}
}

func TestClassifyNoCuesIsNeutral(t *testing.T) {
	result := Classify("The train leaves at seven")
	if result.Label != Neutral {
		t.Fatalf("expected neutral, got %s", result.Label)
	}
	if result.Intensity != neutralIntensity {
		t.Fatalf("expected neutral intensity %f, got %f", neutralIntensity, result.Intensity)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	text := "Wow, that is amazing and I feel happy!"
	first := Classify(text)
	for i := 0; i < 50; i++ {
		if got := Classify(text); got != first {
			t.Fatalf("run %d: expected %+v, got %+v", i, first, got)
		}
	}
}

func TestClassifyTieUsesLabelOrder(t *testing.T) {
	// one happy keyword and one sad keyword score equally
	result := Classify("glad but tired")
	if result.Label != Happy {
		t.Fatalf("expected happy to win the tie, got %s", result.Label)
	}
}

func TestClassifyUsesWordBoundaries(t *testing.T) {
	if result := Classify("I made a sandwich"); result.Label != Neutral {
		t.Fatalf("expected neutral, got %s", result.Label)
	}
}

func TestClassifyChineseKeywords(t *testing.T) {
	if result := Classify("我今天很难过"); result.Label != Sad {
		t.Fatalf("expected sad, got %s", result.Label)
	}
}

func TestClassifyIntensityIsCapped(t *testing.T) {
	result := Classify("amazing awesome incredible fantastic wow excited!!!!!")
	if result.Label != Excited {
		t.Fatalf("expected excited, got %s", result.Label)
	}
	if result.Intensity != 1 {
		t.Fatalf("expected capped intensity, got %f", result.Intensity)
	}
}

func TestClassifyTurnMapsLearnerEmotion(t *testing.T) {
	result := ClassifyTurn("I don't understand the subjunctive", "The subjunctive follows que in this sentence.")
	if result.Label != Thoughtful {
		t.Fatalf("expected thoughtful response to confusion, got %s", result.Label)
	}

	result = ClassifyTurn("我今天很难过", "Let us look at the next word.")
	if result.Label != Encouraging {
		t.Fatalf("expected encouraging response to sadness, got %s", result.Label)
	}
}

func TestClassifyTurnPrefersReplyEmotion(t *testing.T) {
	result := ClassifyTurn("I am so sad", "Great job, keep going!")
	if result.Label != Encouraging && result.Label != Happy {
		t.Fatalf("expected reply emotion to win, got %s", result.Label)
	}
}

func TestParse(t *testing.T) {
	if label, ok := Parse(" Thoughtful "); !ok || label != Thoughtful {
		t.Fatalf("expected thoughtful, got %s ok=%v", label, ok)
	}
	if label, ok := Parse("tender"); ok || label != Neutral {
		t.Fatalf("expected unknown label to map to neutral, got %s ok=%v", label, ok)
	}
}
