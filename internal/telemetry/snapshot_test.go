package telemetry

import (
	"testing"
	"time"

	"github.com/nerrad567/solar-gateway/internal/device"
)

func TestDeriveSignals(t *testing.T) {
	tests := []struct {
		name      string
		sun, lens float64
		pwm       int
		mode      device.Mode
		want      ControlSignals
	}{
		{
			name: "auto tracking clockwise",
			sun:  45.5, lens: 40, pwm: 128, mode: device.ModeAuto,
			want: ControlSignals{TrackingError: 5.5, MotorPercentage: 50.2, MotorDirection: DirectionCW, TrackingEnabled: true},
		},
		{
			name: "counter clockwise",
			sun:  10, lens: 20, pwm: 0, mode: device.ModePresentation,
			want: ControlSignals{TrackingError: 10, MotorDirection: DirectionCCW, TrackingEnabled: true},
		},
		{
			name: "within deadband",
			sun:  30, lens: 29.5, pwm: 0, mode: device.ModeManual,
			want: ControlSignals{TrackingError: 0.5, MotorDirection: DirectionStop, ManualOverride: true},
		},
		{
			name: "halt forces safety stop",
			sun:  30, lens: 30, pwm: 0, mode: device.ModeHalt,
			want: ControlSignals{MotorDirection: DirectionStop, SafetyStop: true},
		},
		{
			name: "large error forces safety stop",
			sun:  90, lens: 40, pwm: 255, mode: device.ModeAuto,
			want: ControlSignals{TrackingError: 50, MotorPercentage: 100, MotorDirection: DirectionCW, TrackingEnabled: true, SafetyStop: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveSignals(device.Angles{SunPosition: tt.sun, LensAngle: tt.lens}, device.NewMotor(tt.pwm), tt.mode)
			if got != tt.want {
				t.Errorf("DeriveSignals() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewSnapshot(t *testing.T) {
	at := time.Date(2026, 10, 16, 9, 30, 15, 0, time.UTC)
	r := device.Reading{
		Angles:     device.Angles{SunPosition: 45.5, LensAngle: 44},
		Motor:      device.NewMotor(51),
		Mode:       device.ModeAuto,
		RTC:        at.Unix(),
		ReceivedAt: at,
	}

	s := NewSnapshot(r, 12)
	if !s.SystemStatus.IsOnline || s.SystemStatus.Stale {
		t.Errorf("status = %+v, want online and fresh", s.SystemStatus)
	}
	if s.Seq != 12 || !s.CapturedAt.Equal(at) {
		t.Errorf("seq/captured = %d/%v", s.Seq, s.CapturedAt)
	}
	st := s.SystemStatus
	if st.RTCYear != 2026 || st.RTCMonth != 10 || st.RTCDay != 16 || st.RTCHour != 9 || st.RTCMinute != 30 || st.RTCSecond != 15 {
		t.Errorf("rtc breakdown = %+v", st)
	}
	if s.ControlSignals.TrackingError != 1.5 {
		t.Errorf("tracking error = %v, want 1.5", s.ControlSignals.TrackingError)
	}
}

func TestSampleFromSnapshot(t *testing.T) {
	s := NewSnapshot(device.Reading{
		Angles:     device.Angles{SunPosition: 20, LensAngle: 18},
		Motor:      device.NewMotor(255),
		Mode:       device.ModeManual,
		ReceivedAt: time.Unix(100, 0),
	}, 1)

	got := SampleFromSnapshot(s)
	want := TrackingSample{
		Timestamp:  time.Unix(100, 0),
		SolarAngle: 20,
		LensAngle:  18,
		MotorPower: 100,
		Error:      2,
		Mode:       device.ModeManual,
	}
	if got != want {
		t.Errorf("SampleFromSnapshot() = %+v, want %+v", got, want)
	}
}

func TestComputeStatistics(t *testing.T) {
	samples := []TrackingSample{
		{Error: 1.111, MotorPower: 10, Mode: device.ModeAuto},
		{Error: 3.333, MotorPower: 20, Mode: device.ModeAuto},
		{Error: 2.0, MotorPower: 25, Mode: device.ModeHalt},
	}

	got := ComputeStatistics(samples, 250, true)
	if got.AverageTrackingError != 2.15 {
		t.Errorf("AverageTrackingError = %v, want 2.15", got.AverageTrackingError)
	}
	if got.MaximumTrackingError != 3.33 {
		t.Errorf("MaximumTrackingError = %v, want 3.33", got.MaximumTrackingError)
	}
	if got.AverageMotorPower != 18.3 {
		t.Errorf("AverageMotorPower = %v, want 18.3", got.AverageMotorPower)
	}
	if got.ModeDistribution["auto"] != 2 || got.ModeDistribution["halt"] != 1 {
		t.Errorf("ModeDistribution = %v", got.ModeDistribution)
	}
	if got.DataPointsCollected != 250 || !got.CollectionRunning {
		t.Errorf("collected/running = %d/%v", got.DataPointsCollected, got.CollectionRunning)
	}
}

func TestComputeStatistics_Empty(t *testing.T) {
	got := ComputeStatistics(nil, 0, false)
	if got.AverageTrackingError != 0 || got.ModeDistribution == nil {
		t.Errorf("ComputeStatistics(nil) = %+v", got)
	}
}

func TestEstimateIrradiance(t *testing.T) {
	at := time.Unix(0, 0)
	tests := map[float64]float64{
		90:  960,
		45:  480,
		0:   0,
		-30: 0,
	}
	for sun, want := range tests {
		got := EstimateIrradiance(sun, at)
		if got.Current != want {
			t.Errorf("EstimateIrradiance(%v).Current = %v, want %v", sun, got.Current, want)
		}
		if got.Peak != PeakIrradiance || got.DailyAverage != DailyAverageIrradiance {
			t.Errorf("peak/average = %v/%v", got.Peak, got.DailyAverage)
		}
	}
}

func TestDemoSnapshot(t *testing.T) {
	s := DemoSnapshot(time.Unix(1760000000, 0))
	if !s.SystemStatus.IsOnline || s.SystemStatus.Mode != device.ModeAuto {
		t.Errorf("demo status = %+v", s.SystemStatus)
	}
	if s.Angles.SunPosition < 15 || s.Angles.SunPosition > 75 {
		t.Errorf("demo sun position = %v, want 45±30", s.Angles.SunPosition)
	}
	if s.Motor.RawValue < 0 || s.Motor.RawValue > device.MaxPWM {
		t.Errorf("demo motor = %+v", s.Motor)
	}
}
