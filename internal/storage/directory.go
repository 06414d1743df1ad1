package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Tiliavir/timesheet-grid/internal/model"
)

const (
	companiesFile = "companies.json"
	projectsFile  = "projects.json"
)

func loadJSONList[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage error reading %s: %w", path, err)
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("corrupt JSON in %s: %w", path, err)
	}
	return out, nil
}

// ListProjects returns the projects of companyID from projects.json.
func (s *FileStore) ListProjects(ctx context.Context, companyID string) ([]model.Project, error) {
	all, err := loadJSONList[model.Project](filepath.Join(s.base, projectsFile))
	if err != nil {
		return nil, err
	}
	out := make([]model.Project, 0, len(all))
	for _, p := range all {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetCompany returns the company with id from companies.json.
func (s *FileStore) GetCompany(ctx context.Context, id string) (model.Company, error) {
	all, err := loadJSONList[model.Company](filepath.Join(s.base, companiesFile))
	if err != nil {
		return model.Company{}, err
	}
	for _, c := range all {
		if c.ID == id {
			return c, nil
		}
	}
	return model.Company{}, fmt.Errorf("company %s: %w", id, ErrNotFound)
}

// ListCompanies returns every company in companies.json.
func (s *FileStore) ListCompanies(ctx context.Context) ([]model.Company, error) {
	return loadJSONList[model.Company](filepath.Join(s.base, companiesFile))
}

// SaveDirectory replaces companies.json and projects.json.
func (s *FileStore) SaveDirectory(companies []model.Company, projects []model.Project) error {
	if err := writeJSONAtomic(filepath.Join(s.base, companiesFile), companies); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(s.base, projectsFile), projects)
}
