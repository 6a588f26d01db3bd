package config

import (
	"fmt"
)

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	AllowedOrigins []string
	UploadDir      string
}

func NewConfig(serverAddr, databaseDSN, uploadDir string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if uploadDir == "" {
		return nil, fmt.Errorf("upload directory cannot be empty")
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		AllowedOrigins: allowedOrigins,
		UploadDir:      uploadDir,
	}, nil
}
