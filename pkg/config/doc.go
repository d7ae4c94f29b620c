// Package config loads environment-driven configuration structs.
//
// Structs declare their variables with github.com/caarlos0/env tags; Load
// merges an optional dotenv file (github.com/joho/godotenv) into the process
// environment first. Real environment variables always win over dotenv values.
package config
