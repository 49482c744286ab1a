package main

import (
	"time"

	"github.com/bitechdev/VirtualSpec/pkg/modelregistry"
)

// Person is a movie-industry person: director, writer, actor.
type Person struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Biography string    `json:"biography"`
	CreatedAt time.Time `json:"created_at"`

	Nominations []Nomination `gorm:"foreignKey:PersonID" json:"nominations,omitempty"`

	// computed by annotation, never a base-table column
	NominationCount int64 `gorm:"->" json:"nomination_count,omitempty"`
}

func (Person) TableName() string { return "people" }

// Nomination is one award nomination of a person for a movie.
type Nomination struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	PersonID uint   `gorm:"not null" json:"person_id"`
	MovieID  uint   `gorm:"not null" json:"movie_id"`
	Award    string `gorm:"not null" json:"award"`
	Category string `json:"category"`
	Year     int    `json:"year"`
	IsWinner bool   `gorm:"default:false" json:"is_winner"`

	Person *Person `gorm:"foreignKey:PersonID" json:"person,omitempty"`
	Movie  *Movie  `gorm:"foreignKey:MovieID" json:"movie,omitempty"`
}

func (Nomination) TableName() string { return "nominations" }

// Movie is a released movie with its directors.
type Movie struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	Year        int       `json:"year"`
	CreatedAt   time.Time `json:"created_at"`

	Directors []Person `gorm:"many2many:movie_directors" json:"directors,omitempty"`
}

func (Movie) TableName() string { return "movies" }

// registerModels makes the domain models discoverable by name.
func registerModels(registry *modelregistry.DefaultModelRegistry) error {
	for name, model := range map[string]interface{}{
		"people":      Person{},
		"nominations": Nomination{},
		"movies":      Movie{},
	} {
		if err := registry.RegisterModel(name, model); err != nil {
			return err
		}
	}
	return nil
}
