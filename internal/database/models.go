package database

import (
	"time"

	"github.com/jackc/pgtype"
)

// SensorReading is one row reported by a flow meter. TotalFlow is the
// meter's cumulative counter; FlowRate is the device-reported rate and is
// not used for analysis.
type SensorReading struct {
	ProductID string    `gorm:"primaryKey;column:product_id"`
	SlaveID   string    `gorm:"primaryKey;column:slave_id"`
	Timestamp time.Time `gorm:"primaryKey;column:timestamp"`
	FlowRate  float64   `gorm:"column:flow_rate"`
	TotalFlow float64   `gorm:"column:total_flow;not null"`
}

// TableName implements the Tabler interface for SensorReading
func (SensorReading) TableName() string {
	return "water_sensor_data"
}

// SlaveProfile holds metadata for one sub-meter. Thresholds is a JSON
// object whose keys override the configured analysis thresholds.
type SlaveProfile struct {
	ProductID       string       `gorm:"primaryKey;column:product_id"`
	SlaveID         string       `gorm:"primaryKey;column:slave_id"`
	SourceType      string       `gorm:"column:source_type"`
	MeasurementUnit string       `gorm:"column:measurement_unit"`
	PipeSize        float64      `gorm:"column:pipe_size"`
	Location        string       `gorm:"column:location"`
	Thresholds      pgtype.JSONB `gorm:"type:jsonb;default:'{}';not null"`
	Deleted         bool         `gorm:"column:deleted;default:false"`
	LastUpdated     time.Time    `gorm:"column:last_updated;default:CURRENT_TIMESTAMP"`
}

// TableName implements the Tabler interface for SlaveProfile
func (SlaveProfile) TableName() string {
	return "slave_profiles"
}
