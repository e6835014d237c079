// Package drivers assembles the table of built-in protocol drivers.
package drivers

import (
	"log/slog"
	"net/http"

	"cyclegen/internal/activity"
	"cyclegen/internal/driver/diag"
	"cyclegen/internal/driver/httpdriver"
	"cyclegen/internal/driver/mongodriver"
	"cyclegen/internal/driver/pgdriver"
	"cyclegen/internal/driver/redisdriver"
)

// Standard returns every built-in driver. The http driver shares client and
// logs request details through logger at debug level.
func Standard(client *http.Client, logger *slog.Logger) *activity.DriverTable {
	if logger == nil {
		logger = slog.Default()
	}
	return activity.NewDriverTable(map[string]activity.DriverFunc{
		diag.Name:        diag.Open,
		httpdriver.Name:  httpdriver.New(client, logger).Open,
		redisdriver.Name: redisdriver.Open,
		pgdriver.Name:    pgdriver.Open,
		mongodriver.Name: mongodriver.Open,
	})
}
