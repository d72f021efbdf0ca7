package abtest

import "testing"

func TestChiSquareTestScenarioTreatmentWins(t *testing.T) {
	result := ChiSquareTest(60, 40, 75, 25, 0.95)
	if !result.IsSignificant {
		t.Fatalf("expected significant difference, got p=%v stat=%v", result.PValue, result.Statistic)
	}
	if result.TreatmentMean <= result.ControlMean {
		t.Fatalf("expected treatment win rate to exceed control: treatment=%v control=%v", result.TreatmentMean, result.ControlMean)
	}
}

func TestTTestDetectsDifference(t *testing.T) {
	control := []float64{0.01, 0.02, -0.01, 0.015, 0.005, -0.005, 0.01, 0.0}
	treatment := []float64{0.05, 0.06, 0.04, 0.055, 0.045, 0.05, 0.06, 0.04}

	result := TTest(control, treatment, 0.95)
	if !result.IsSignificant {
		t.Fatalf("expected significant difference, got p=%v", result.PValue)
	}
	if result.TreatmentMean <= result.ControlMean {
		t.Fatalf("expected treatment mean to exceed control")
	}
}

func TestMannWhitneyDetectsDifference(t *testing.T) {
	control := []float64{1, 2, 3, 2, 1, 2, 3, 2}
	treatment := []float64{8, 9, 10, 9, 8, 9, 10, 9}

	result := MannWhitneyTest(control, treatment, 0.95)
	if !result.IsSignificant {
		t.Fatalf("expected significant difference, got p=%v", result.PValue)
	}
}

func TestTTestInsufficientSamples(t *testing.T) {
	result := TTest([]float64{1}, []float64{1, 2}, 0.95)
	if result.IsSignificant {
		t.Fatalf("expected not significant with insufficient samples")
	}
}

func TestSharpeDifferenceTestDetectsImprovement(t *testing.T) {
	control := []float64{0.001, -0.002, 0.0015, 0.0005, -0.001, 0.002, 0.0, 0.001}
	treatment := []float64{0.01, 0.012, 0.009, 0.011, 0.0105, 0.0095, 0.011, 0.0098}

	result := SharpeDifferenceTest(control, treatment, 0.95)
	if result.TestName != "sharpe-ratio" {
		t.Fatalf("expected test name sharpe-ratio, got %s", result.TestName)
	}
	if result.TreatmentMean <= result.ControlMean {
		t.Fatalf("expected treatment Sharpe to exceed control: treatment=%v control=%v", result.TreatmentMean, result.ControlMean)
	}
	if !result.IsSignificant {
		t.Fatalf("expected the return distributions to be significant, got p=%v", result.PValue)
	}
}

func TestSharpeDifferenceTestInsufficientSamples(t *testing.T) {
	result := SharpeDifferenceTest([]float64{0.01}, []float64{0.01, 0.02}, 0.95)
	if result.PValue != 1 {
		t.Fatalf("expected a neutral p-value with insufficient samples, got %v", result.PValue)
	}
}

func TestAnnualizedSharpeZeroStdDev(t *testing.T) {
	if s := AnnualizedSharpe([]float64{0.01, 0.01, 0.01}, 0, 252); s != 0 {
		t.Fatalf("expected zero Sharpe for a constant series, got %v", s)
	}
}

func TestSequentialProbabilityRatioTestTreatmentWins(t *testing.T) {
	result := SequentialProbabilityRatioTest(20, 80, 80, 20, 0.05, 0.20)
	if result.Decision != SPRTTreatmentWins {
		t.Fatalf("expected treatment_wins, got %s (llr=%v)", result.Decision, result.LogLikelihoodRatio)
	}
	if result.TreatmentWinRate <= result.ControlWinRate {
		t.Fatalf("expected treatment win rate to exceed control")
	}
}

func TestSequentialProbabilityRatioTestControlWins(t *testing.T) {
	result := SequentialProbabilityRatioTest(80, 20, 20, 80, 0.05, 0.20)
	if result.Decision != SPRTControlWins {
		t.Fatalf("expected control_wins, got %s (llr=%v)", result.Decision, result.LogLikelihoodRatio)
	}
}

func TestSequentialProbabilityRatioTestContinuesOnThinData(t *testing.T) {
	result := SequentialProbabilityRatioTest(2, 1, 1, 2, 0.05, 0.20)
	if result.Decision != SPRTContinue {
		t.Fatalf("expected continue with only a handful of trials, got %s", result.Decision)
	}
}

func TestSequentialProbabilityRatioTestNoData(t *testing.T) {
	result := SequentialProbabilityRatioTest(0, 0, 0, 0, 0.05, 0.20)
	if result.Decision != SPRTContinue {
		t.Fatalf("expected continue with no data, got %s", result.Decision)
	}
}
