// Package config holds the execution core's tunables: tree depths, per-token
// decimal/dust tables, fee and leverage bounds, the funding interval, and the
// coordinator's spin-wait bound.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Trees struct {
	NotesDepth     uint8
	PositionsDepth uint8
	OrderTabsDepth uint8
}

type Fees struct {
	SpotFeeBps uint64
	PerpFeeBps uint64
}

type Perp struct {
	LeverageCap      uint64 // scaled by LevDecimals (a factor, not an exponent)
	LevDecimals      uint64
	FundingInterval  time.Duration
	ImpactNotional   uint64
}

type Coordinator struct {
	// SpinWaitStep and SpinWaitMaxAttempts bound blockUntilPrevFillFinished's
	// busy-wait for a concurrently-processing partial fill (spec §5).
	SpinWaitStep        time.Duration
	SpinWaitMaxAttempts int
}

// Header supplies the two fields of the §6.2 global dex state that are
// operator policy rather than derived from batch content: the circuit
// version the proof generator expects, and how far past finalization the
// batch's orders remain valid.
type Header struct {
	ConfigCode       uint64
	ExpirationWindow time.Duration
}

type Config struct {
	Trees          Trees
	Fees           Fees
	Perp           Perp
	Coordinator    Coordinator
	Header         Header
	DecimalTable   map[uint32]uint8
	DustTable      map[uint32]uint64
}

func Default() Config {
	return Config{
		Trees: Trees{NotesDepth: 32, PositionsDepth: 32, OrderTabsDepth: 16},
		Fees:  Fees{SpotFeeBps: 10, PerpFeeBps: 5},
		Perp: Perp{
			LeverageCap:     20 * 1_000_000,
			LevDecimals:     1_000_000,
			FundingInterval: time.Minute,
			ImpactNotional:  1_000 * 100_000_000,
		},
		Coordinator: Coordinator{
			SpinWaitStep:        5 * time.Millisecond,
			SpinWaitMaxAttempts: 12,
		},
		Header: Header{
			ConfigCode:       1,
			ExpirationWindow: 4 * time.Hour,
		},
		DecimalTable: map[uint32]uint8{},
		DustTable:    map[uint32]uint64{},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("TREES_NOTES_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Trees.NotesDepth = uint8(n)
		}
	}
	if v := os.Getenv("TREES_POSITIONS_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Trees.PositionsDepth = uint8(n)
		}
	}
	if v := os.Getenv("TREES_ORDER_TABS_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Trees.OrderTabsDepth = uint8(n)
		}
	}
	if v := os.Getenv("FEES_SPOT_BPS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Fees.SpotFeeBps = n
		}
	}
	if v := os.Getenv("FEES_PERP_BPS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Fees.PerpFeeBps = n
		}
	}
	if v := os.Getenv("PERP_LEVERAGE_CAP"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Perp.LeverageCap = n
		}
	}
	if v := os.Getenv("PERP_FUNDING_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Perp.FundingInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("COORDINATOR_SPIN_WAIT_STEP_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Coordinator.SpinWaitStep = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("COORDINATOR_SPIN_WAIT_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Coordinator.SpinWaitMaxAttempts = n
		}
	}
	if v := os.Getenv("HEADER_CONFIG_CODE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Header.ConfigCode = n
		}
	}
	if v := os.Getenv("HEADER_EXPIRATION_WINDOW_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Header.ExpirationWindow = time.Duration(ms) * time.Millisecond
		}
	}

	return cfg
}
