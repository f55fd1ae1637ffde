package redfish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fgeck/ilohelper/internal/models"
)

// thermalResource is the subset of the Redfish Thermal resource we read.
type thermalResource struct {
	Temperatures []temperatureJSON `json:"Temperatures"`
}

type temperatureJSON struct {
	Name           string     `json:"Name"`
	ReadingCelsius *float64   `json:"ReadingCelsius"`
	Status         statusJSON `json:"Status"`
}

type statusJSON struct {
	State  string `json:"State"`
	Health string `json:"Health"`
}

// systemResource is the subset of the Redfish ComputerSystem resource we read.
type systemResource struct {
	PowerState    string     `json:"PowerState"`
	Model         string     `json:"Model"`
	HostName      string     `json:"HostName"`
	Status        statusJSON `json:"Status"`
	MemorySummary struct {
		TotalSystemMemoryGiB float64 `json:"TotalSystemMemoryGiB"`
	} `json:"MemorySummary"`
	ProcessorSummary json.RawMessage `json:"ProcessorSummary"`
}

type resetRequest struct {
	ResetType string `json:"ResetType"`
}

// Temperatures reads the thermal resource. Failures are logged and returned
// in the result with empty readings.
func (s *Session) Temperatures(ctx context.Context) (*models.TemperatureResult, error) {
	result := &models.TemperatureResult{}

	s.logger.Debug().Str("path", s.cfg.ThermalPath).Msg("getting temperatures")

	var thermal thermalResource
	if err := s.getJSON(ctx, s.cfg.ThermalPath, &thermal); err != nil {
		s.logger.Error().Err(err).Msg("failed to retrieve temperature data")
		result.Error = err
		return result, nil
	}

	readings := make([]models.ThermalReading, 0, len(thermal.Temperatures))
	for _, sensor := range thermal.Temperatures {
		reading := models.ThermalReading{
			Name:    sensor.Name,
			State:   sensor.Status.State,
			Present: sensor.ReadingCelsius != nil && sensor.Status.State != models.SensorStateAbsent,
		}
		if sensor.ReadingCelsius != nil {
			reading.Celsius = *sensor.ReadingCelsius
		}

		s.logger.Debug().
			Str("sensor", reading.Name).
			Float64("celsius", reading.Celsius).
			Bool("present", reading.Present).
			Msg("sensor reading")

		readings = append(readings, reading)
	}

	result.Readings = readings
	result.Stats = models.ComputeTemperatureStats(readings)

	event := s.logger.Info().Int("sensors", len(readings))
	if result.Stats != nil {
		event = event.
			Int("present", result.Stats.Count).
			Float64("min", result.Stats.Min).
			Float64("max", result.Stats.Max).
			Float64("mean", result.Stats.Mean)
	}
	event.Msg("temperatures retrieved")

	return result, nil
}

// Status reads the system resource. With opts.RefreshTemperatures the
// thermal resource is queried first and attached to the result. Failures
// are logged and returned in the result with a nil Status.
func (s *Session) Status(ctx context.Context, opts models.StatusOptions) (*models.StatusResult, error) {
	result := &models.StatusResult{}

	if opts.RefreshTemperatures {
		temps, err := s.Temperatures(ctx)
		if err != nil {
			return nil, err
		}
		result.Temperatures = temps
	}

	s.logger.Debug().Str("path", s.cfg.SystemPath).Msg("getting server status")

	var system systemResource
	if err := s.getJSON(ctx, s.cfg.SystemPath, &system); err != nil {
		s.logger.Error().Err(err).Msg("failed to retrieve status")
		result.Error = err
		return result, nil
	}

	if system.PowerState == "" {
		result.Error = fmt.Errorf("%w: system resource has no PowerState", models.ErrTransport)
		s.logger.Error().Err(result.Error).Msg("failed to retrieve status")
		return result, nil
	}

	result.Status = &models.SystemStatus{
		PowerState: system.PowerState,
		PoweredOn:  models.PoweredOnFromState(system.PowerState),
		Health:     system.Status.Health,
		Model:      system.Model,
		HostName:   system.HostName,
		MemoryGiB:  system.MemorySummary.TotalSystemMemoryGiB,
		Processor:  system.ProcessorSummary,
	}

	s.logger.Info().
		Str("power_state", result.Status.PowerState).
		Bool("powered_on", result.Status.PoweredOn).
		Str("health", result.Status.Health).
		Float64("memory_gib", result.Status.MemoryGiB).
		RawJSON("cpu", processorOrNull(result.Status.Processor)).
		Msg("server status retrieved")

	return result, nil
}

// PowerOn presses the power button. The effect is not verified.
func (s *Session) PowerOn(ctx context.Context) (*models.PowerActionResult, error) {
	return s.reset(ctx, models.ResetPushPowerButton), nil
}

// PowerOff forces the system off. The effect is not verified.
func (s *Session) PowerOff(ctx context.Context) (*models.PowerActionResult, error) {
	return s.reset(ctx, models.ResetForceOff), nil
}

func (s *Session) reset(ctx context.Context, resetType string) *models.PowerActionResult {
	result := &models.PowerActionResult{ResetType: resetType}

	s.logger.Info().
		Str("reset_type", resetType).
		Str("path", s.cfg.ResetPath).
		Msg("submitting reset action")

	code, err := s.postJSON(ctx, s.cfg.ResetPath, resetRequest{ResetType: resetType})
	result.StatusCode = code
	if err != nil {
		s.logger.Error().Err(err).Str("reset_type", resetType).Msg("reset action failed")
		result.Error = err
		return result
	}

	s.logger.Info().
		Str("reset_type", resetType).
		Int("status", code).
		Msg("reset action accepted")

	return result
}

func processorOrNull(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
