package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"jiaming2012/labor-export/models"
)

// ReferenceSource supplies the pay code set and employee union codes an export run needs.
type ReferenceSource interface {
	GetPoliciesInSet(ctx context.Context, setType, setName string, asOf time.Time) (models.PayCodeSet, error)
	GetAllEmployees(ctx context.Context, filter string, asOf time.Time) ([]models.EmployeeUnion, error)
}

type PolicyDTO struct {
	Name string `json:"name"`
}

type PolicySetDTO struct {
	Type     string      `json:"type"`
	Name     string      `json:"name"`
	Policies []PolicyDTO `json:"policies"`
}

type referenceDataClient struct {
	baseURL string
	authKey string
	client  *http.Client
}

func (c *referenceDataClient) get(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", c.authKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", req.URL.Path, resp.Status)
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("json decode failure for %s: %w", req.URL.Path, err)
	}

	return nil
}

func (c *referenceDataClient) GetPoliciesInSet(ctx context.Context, setType, setName string, asOf time.Time) (models.PayCodeSet, error) {
	policiesURL := fmt.Sprintf("%s/policies/sets/%s/%s?asOf=%s", c.baseURL, url.PathEscape(setType), url.PathEscape(setName), asOf.Format("2006-01-02"))

	var dto PolicySetDTO
	if err := c.get(ctx, policiesURL, &dto); err != nil {
		return models.PayCodeSet{}, fmt.Errorf("failed to fetch policy set %s/%s: %w", setType, setName, err)
	}

	codes := make([]string, 0, len(dto.Policies))
	for _, p := range dto.Policies {
		codes = append(codes, p.Name)
	}

	set := models.NewPayCodeSet(codes...)
	log.Debugf("policy set %s/%s has %d pay codes", setType, setName, set.Len())

	return set, nil
}

func (c *referenceDataClient) GetAllEmployees(ctx context.Context, filter string, asOf time.Time) ([]models.EmployeeUnion, error) {
	q := url.Values{}
	q.Set("filter", filter)
	q.Set("asOf", asOf.Format("2006-01-02"))
	employeesURL := fmt.Sprintf("%s/employees?%s", c.baseURL, q.Encode())

	var employees []models.EmployeeUnion
	if err := c.get(ctx, employeesURL, &employees); err != nil {
		return nil, fmt.Errorf("failed to fetch employees: %w", err)
	}

	return employees, nil
}

func (c *referenceDataClient) initiate(ctx context.Context, email string, password string) error {
	loginURL := fmt.Sprintf("%s/account/login", c.baseURL)

	postBody, _ := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, bytes.NewBuffer(postBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to login: %s", resp.Status)
	}

	authHeaders := resp.Header.Values("Authorization")
	if len(authHeaders) == 0 {
		return fmt.Errorf("failed to login: could not find auth key in headers")
	}

	c.authKey = authHeaders[0]

	return nil
}

func NewReferenceDataClient(ctx context.Context, baseURL string, email string, password string, timeout time.Duration) (*referenceDataClient, error) {
	client := &referenceDataClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}

	if err := client.initiate(ctx, email, password); err != nil {
		return nil, err
	}

	return client, nil
}

// LoadReferenceData fetches the valid pay codes and builds the union code map as of asOf.
func LoadReferenceData(ctx context.Context, src ReferenceSource, setType, setName, filter string, asOf time.Time) (models.PayCodeSet, *models.UnionCodeMap, error) {
	payCodes, err := src.GetPoliciesInSet(ctx, setType, setName, asOf)
	if err != nil {
		return models.PayCodeSet{}, nil, &models.ConfigurationError{Reason: "failed to load pay code set " + setName, Err: err}
	}

	employees, err := src.GetAllEmployees(ctx, filter, asOf)
	if err != nil {
		return models.PayCodeSet{}, nil, &models.ConfigurationError{Reason: "failed to load employees", Err: err}
	}

	unions := models.NewUnionCodeMap(employees)
	log.Infof("loaded %d valid pay codes and %d employees", payCodes.Len(), unions.Len())

	return payCodes, unions, nil
}
