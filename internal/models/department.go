package models

import "time"

// Department is a routing bucket grouping one head agent and its specialists.
type Department struct {
	ID                  string      `gorm:"primary_key" json:"id" yaml:"id"`
	Slug                string      `gorm:"unique_index" json:"slug" yaml:"slug"`
	Name                string      `json:"name" yaml:"name"`
	Description         string      `gorm:"type:text" json:"description,omitempty" yaml:"description"`
	Keywords            StringSlice `gorm:"type:text" json:"keywords" yaml:"keywords"`
	MinQualityThreshold *float64    `json:"min_quality_threshold,omitempty" yaml:"min_quality_threshold"`
	MaxSpecialists      int         `json:"max_specialists,omitempty" yaml:"max_specialists"`
	Active              bool        `json:"active" yaml:"active"`
	CreatedAt           time.Time   `json:"created_at" yaml:"-"`
	UpdatedAt           time.Time   `json:"updated_at" yaml:"-"`
}

// TableName sets the table name for Department
func (Department) TableName() string {
	return "departments"
}
