package db

import (
	"database/sql"
	"fmt"
	"log"

	"queuesync/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB initializes the database schema, creating tables if they don't exist.
func InitDB() error {
	if err := createTracksTable(); err != nil {
		return err
	}
	if err := createUserPreferencesTable(); err != nil {
		return err
	}
	if err := createQueueStatesTable(); err != nil {
		return err
	}

	log.Println("Database initialization completed.")
	return nil
}

func createTracksTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS tracks (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		file_id VARCHAR(255) NOT NULL,
		title VARCHAR(255) NOT NULL,
		artist VARCHAR(255) NOT NULL,
		artist_handle VARCHAR(255) NOT NULL DEFAULT '',
		artist_avatar_url VARCHAR(1024),
		album VARCHAR(255),
		file_type VARCHAR(32) NOT NULL DEFAULT '',
		audio_url VARCHAR(1024),
		features JSON,
		play_count INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_tracks_file_id (file_id)
	);
	`
	_, err := DB.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}
	return nil
}

func createUserPreferencesTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS user_preferences (
		did VARCHAR(255) PRIMARY KEY,
		auto_advance BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);
	`
	_, err := DB.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create user_preferences table: %w", err)
	}
	return nil
}

func createQueueStatesTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS queue_states (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		did VARCHAR(255) NOT NULL UNIQUE,
		state JSON NOT NULL,
		revision BIGINT NOT NULL DEFAULT 1,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);
	`
	_, err := DB.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create queue_states table: %w", err)
	}
	return nil
}
