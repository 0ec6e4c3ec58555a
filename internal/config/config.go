package config

import "time"

// PostgresConfig carries the connection string plus pool tuning knobs shared
// by the API and the migrator.
type PostgresConfig struct {
	DSN             string        `env:"PG_DSN"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" envDefault:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// EconomyConfig holds the ledger engine's business configuration.
//
// DailyTransferLimit caps the total amount (in minor currency units) a
// competitor may send in any rolling 24h window. Timezone fixes the canonical
// day boundary for daily reward claims.
type EconomyConfig struct {
	DailyTransferLimit int64         `env:"DAILY_TRANSFER_LIMIT" envDefault:"10000"`
	DailyRewardAmount  int64         `env:"DAILY_REWARD_AMOUNT" envDefault:"100"`
	Timezone           string        `env:"ECONOMY_TIMEZONE" envDefault:"UTC"`
	TxTimeout          time.Duration `env:"TX_TIMEOUT" envDefault:"5s"`
}
