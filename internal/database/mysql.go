package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

// buildMySQLDSN produces a go-sql-driver DSN. Room timestamps are scanned into
// time.Time, so parseTime is always enabled and times are read as UTC.
func buildMySQLDSN(cfg Config) (string, error) {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return normaliseMySQLDSN(dsn)
	}

	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql configuration requires user and database name")
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	dc := newMySQLConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	dc.DBName = cfg.Name
	for key, value := range cfg.Options {
		dc.Params[key] = value
	}
	return dc.FormatDSN(), nil
}

// normaliseMySQLDSN accepts the driver's native format or a mysql:// URL.
func normaliseMySQLDSN(dsn string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(dsn), "mysql://") {
		dc, err := gomysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		dc.ParseTime = true
		return dc.FormatDSN(), nil
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql url: %w", err)
	}

	dc := newMySQLConfig()
	dc.Net = "tcp"
	dc.Addr = u.Host
	if u.Port() == "" {
		dc.Addr = net.JoinHostPort(u.Hostname(), "3306")
	}
	dc.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		dc.User = u.User.Username()
		dc.Passwd, _ = u.User.Password()
	}
	if dc.User == "" || dc.DBName == "" {
		return "", errors.New("mysql url requires user and database name")
	}
	for key, values := range u.Query() {
		if len(values) > 0 {
			dc.Params[key] = values[0]
		}
	}
	return dc.FormatDSN(), nil
}

func newMySQLConfig() *gomysql.Config {
	dc := gomysql.NewConfig()
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.Params = map[string]string{"charset": "utf8mb4"}
	return dc
}
