package vol

import (
	"errors"
	"math"
	"testing"

	"github.com/voltrade/voltbot/internal/domain"
)

func approx(t *testing.T, got, want, tol float64, label string) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v (±%v)", label, got, want, tol)
	}
}

func TestImpliedProbability(t *testing.T) {
	tests := []struct {
		name    string
		price   float64
		format  domain.PriceFormat
		want    float64
		wantErr bool
	}{
		{name: "american underdog", price: 150, format: domain.FormatAmerican, want: 0.4},
		{name: "american favorite", price: -110, format: domain.FormatAmerican, want: 110.0 / 210.0},
		{name: "american even", price: 100, format: domain.FormatAmerican, want: 0.5},
		{name: "american zero", price: 0, format: domain.FormatAmerican, wantErr: true},
		{name: "decimal", price: 2.5, format: domain.FormatDecimal, want: 0.4},
		{name: "decimal zero", price: 0, format: domain.FormatDecimal, wantErr: true},
		{name: "decimal negative", price: -1.5, format: domain.FormatDecimal, wantErr: true},
		{name: "percent", price: 52.4, format: domain.FormatPercent, want: 0.524},
		{name: "probability", price: 0.524, format: domain.FormatProbability, want: 0.524},
		{name: "probability zero", price: 0, format: domain.FormatProbability, wantErr: true},
		{name: "sporttrade contract", price: 52, format: domain.FormatSporttrade, want: 0.52},
		{name: "unknown format", price: 1, format: domain.PriceFormat(9), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ImpliedProbability(tt.price, tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ImpliedProbability = %v, want error", got)
				}
				if !errors.Is(err, domain.ErrInvalidInput) {
					t.Errorf("error = %v, want ErrInvalidInput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ImpliedProbability: %v", err)
			}
			approx(t, got, tt.want, 1e-9, "ImpliedProbability")
		})
	}
}

func TestPregameImpliedVol(t *testing.T) {
	// Φ⁻¹(0.6) = √2·erfinv(0.2) ≈ 0.2533471.
	got, err := PregameImpliedVol(-3.5, 0.6, 0)
	if err != nil {
		t.Fatalf("PregameImpliedVol: %v", err)
	}
	approx(t, got, 13.8150, 1e-3, "PregameImpliedVol(-3.5, 0.6, 0)")

	// The home side quotes the mirrored spread; the volatility is the same.
	flipped, err := PregameImpliedVol(3.5, 0.6, 1)
	if err != nil {
		t.Fatalf("PregameImpliedVol side 1: %v", err)
	}
	approx(t, flipped, got, 1e-12, "side-flipped vol")

	for _, p := range []float64{0.5, 0, 1, 1e-7, 1 - 1e-7, math.NaN()} {
		if _, err := PregameImpliedVol(-3.5, p, 0); err == nil {
			t.Errorf("PregameImpliedVol with prob %v succeeded, want error", p)
		}
	}
}

func TestLiveImpliedVol(t *testing.T) {
	// lead 7, expected margin 3.5, halfway through: (7+1.75)/(Φ⁻¹(0.6)·√0.5).
	got, err := LiveImpliedVol(7, 3.5, 0.5, 0.6)
	if err != nil {
		t.Fatalf("LiveImpliedVol: %v", err)
	}
	approx(t, got, 48.8435, 1e-3, "LiveImpliedVol")

	// At tip-off with no lead it matches the pregame form.
	live, err := LiveImpliedVol(0, 3.5, 0, 0.6)
	if err != nil {
		t.Fatalf("LiveImpliedVol t=0: %v", err)
	}
	pregame, err := PregameImpliedVol(3.5, 0.6, 0)
	if err != nil {
		t.Fatalf("PregameImpliedVol: %v", err)
	}
	approx(t, live, pregame, 1e-9, "t=0 equivalence")

	// Elapsed beyond regulation clamps instead of dividing by zero.
	overtime, err := LiveImpliedVol(3, 0, 1.5, 0.6)
	if err != nil {
		t.Fatalf("LiveImpliedVol overtime: %v", err)
	}
	if math.IsInf(overtime, 0) || math.IsNaN(overtime) {
		t.Errorf("overtime vol not finite: %v", overtime)
	}

	if _, err := LiveImpliedVol(7, 3.5, 0.5, 0.5); err == nil {
		t.Error("prob 0.5 succeeded, want error")
	}
}

func TestExpectedVolDecay(t *testing.T) {
	approx(t, ExpectedVol(10, 0), 10, 1e-12, "ExpectedVol at start")
	approx(t, ExpectedVol(10, 0.75), 5, 1e-12, "ExpectedVol at 3/4")
	approx(t, ExpectedVol(10, 2), 1, 1e-9, "ExpectedVol clamped")
	approx(t, ExpectedVol(10, -1), 10, 1e-12, "ExpectedVol negative elapsed")
}

func TestDeviation(t *testing.T) {
	got, err := Deviation(12, 10)
	if err != nil {
		t.Fatalf("Deviation: %v", err)
	}
	approx(t, got, 20, 1e-12, "Deviation above")

	got, err = Deviation(8, 10)
	if err != nil {
		t.Fatalf("Deviation: %v", err)
	}
	approx(t, got, -20, 1e-12, "Deviation below")

	if _, err := Deviation(5, 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Deviation with zero expected = %v, want ErrInvalidInput", err)
	}
}

func TestElapsedFraction(t *testing.T) {
	tests := []struct {
		name    string
		league  domain.League
		period  int
		clock   string
		want    float64
		wantErr bool
	}{
		{name: "nfl kickoff", league: domain.LeagueNFL, period: 1, clock: "15:00", want: 0},
		{name: "nfl mid second quarter", league: domain.LeagueNFL, period: 2, clock: "11:22", want: (15 + 15 - (11 + 22.0/60)) / 60},
		{name: "nba final buzzer", league: domain.LeagueNBA, period: 4, clock: "0:00", want: 0.99},
		{name: "cbb halftime", league: domain.LeagueCBB, period: 2, clock: "20:00", want: 0.5},
		{name: "nfl overtime clamps", league: domain.LeagueNFL, period: 5, clock: "10:00", want: 0.99},
		{name: "clock above period length clamps", league: domain.LeagueNFL, period: 1, clock: "20:00", want: 0},
		{name: "unknown league", league: domain.League(99), period: 1, clock: "10:00", wantErr: true},
		{name: "period zero", league: domain.LeagueNFL, period: 0, clock: "10:00", wantErr: true},
		{name: "no colon", league: domain.LeagueNFL, period: 1, clock: "10", wantErr: true},
		{name: "junk minutes", league: domain.LeagueNFL, period: 1, clock: "xx:00", wantErr: true},
		{name: "seconds out of range", league: domain.LeagueNFL, period: 1, clock: "10:75", wantErr: true},
		{name: "negative minutes", league: domain.LeagueNFL, period: 1, clock: "-1:30", wantErr: true},
		{name: "empty clock", league: domain.LeagueNFL, period: 1, clock: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ElapsedFraction(tt.league, tt.period, tt.clock)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ElapsedFraction = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ElapsedFraction: %v", err)
			}
			approx(t, got, tt.want, 1e-9, "ElapsedFraction")
		})
	}
}
