package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"
	"gitlab.com/dirk.krummacker/customers-service/pkg/model"
	"golang.org/x/time/rate"
)

// benchmark sends batches of requests to a running service and prints the average duration of
// each request kind in microseconds.
type benchmark struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	faker   *gofakeit.Faker
	run     int64
}

// Usage example on the command line:
// > go run main.go
// > go run main.go --url http://localhost:8080 --sizes 100,1000 --rate 500
func main() {
	var baseURL string
	var sizes []int
	var requestsPerSecond float64
	cmd := &cobra.Command{
		Use:          "client",
		Short:        "Measure the response times of a running customers service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit := rate.Inf
			if requestsPerSecond > 0 {
				limit = rate.Limit(requestsPerSecond)
			}
			b := &benchmark{
				baseURL: baseURL,
				client:  &http.Client{Timeout: 30 * time.Second},
				limiter: rate.NewLimiter(limit, 1),
				faker:   gofakeit.New(0),
				run:     time.Now().Unix(),
			}
			return b.execute(cmd.Context(), sizes)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "base URL of the service")
	cmd.Flags().IntSliceVar(&sizes, "sizes", []int{1000, 5000, 10000, 50000, 100000}, "number of customers per round")
	cmd.Flags().Float64Var(&requestsPerSecond, "rate", 0, "maximum requests per second, 0 for unlimited")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func (b *benchmark) execute(ctx context.Context, sizes []int) error {
	fmt.Println()
	fmt.Println("  Elements      POST       PUT     PATCH       GET    DELETE ")
	fmt.Println("-------------------------------------------------------------")
	for round, loops := range sizes {
		fmt.Printf("%10d", loops)

		// POST requests
		ids := make([]int64, 0, loops)
		var duration time.Duration
		for i := 0; i < loops; i++ {
			id, d, err := b.create(ctx, b.fakeCustomer(round, i))
			if err != nil {
				return err
			}
			ids = append(ids, id)
			duration += d
		}
		printAverage(duration, loops)

		// PUT requests
		err := b.callInLoop(ctx, ids, func(id int64) (time.Duration, error) {
			c := b.fakeCustomer(round, int(id))
			c.Id = id
			c.Name += " (updated)"
			return b.send(ctx, http.MethodPut, b.customerURL(id), c, http.StatusNoContent, nil)
		})
		if err != nil {
			return err
		}

		// PATCH requests
		err = b.callInLoop(ctx, ids, func(id int64) (time.Duration, error) {
			ops := []model.PatchOperation{
				{Op: "replace", Path: "/notes", Value: b.faker.JobTitle()},
				{Op: "copy", From: "/notes", Path: "/address"},
			}
			return b.send(ctx, http.MethodPatch, b.customerURL(id), ops, http.StatusNoContent, nil)
		})
		if err != nil {
			return err
		}

		// GET requests
		err = b.callInLoop(ctx, ids, func(id int64) (time.Duration, error) {
			var c model.Customer
			return b.send(ctx, http.MethodGet, b.customerURL(id), nil, http.StatusOK, &c)
		})
		if err != nil {
			return err
		}

		// DELETE requests
		err = b.callInLoop(ctx, ids, func(id int64) (time.Duration, error) {
			return b.send(ctx, http.MethodDelete, b.customerURL(id), nil, http.StatusNoContent, nil)
		})
		if err != nil {
			return err
		}
		fmt.Println()
	}
	return nil
}

// fakeCustomer returns a random customer. The name contains the run, round and index so that it
// does not collide with other customers.
func (b *benchmark) fakeCustomer(round int, i int) model.Customer {
	return model.Customer{
		Name:    fmt.Sprintf("%s %d-%d-%d", b.faker.Company(), b.run, round, i),
		Email:   b.faker.Email(),
		Phone:   int64(b.faker.Number(100000000, 999999999)),
		Address: b.faker.Address().Address,
	}
}

// callInLoop calls f for every id in random order and prints the average duration.
func (b *benchmark) callInLoop(ctx context.Context, ids []int64, f func(id int64) (time.Duration, error)) error {
	shuffled := append([]int64(nil), ids...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	var duration time.Duration
	for _, id := range shuffled {
		d, err := f(id)
		if err != nil {
			return err
		}
		duration += d
	}
	printAverage(duration, len(ids))
	return nil
}

func printAverage(total time.Duration, count int) {
	if count == 0 {
		fmt.Printf("%10s", "-")
		return
	}
	fmt.Printf("%10d", total.Microseconds()/int64(count))
}

func (b *benchmark) customerURL(id int64) string {
	return fmt.Sprintf("%s/customers/%d", b.baseURL, id)
}

func (b *benchmark) create(ctx context.Context, c model.Customer) (int64, time.Duration, error) {
	var created model.Customer
	d, err := b.send(ctx, http.MethodPost, b.baseURL+"/customers", c, http.StatusCreated, &created)
	return created.Id, d, err
}

// send executes one request and decodes the response into out, if given. Only the round trip is
// timed, not the waiting for the rate limiter.
func (b *benchmark) send(ctx context.Context, method string, url string, in any, want int, out any) (time.Duration, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(payload)
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	before := time.Now()
	res, err := b.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error making http request: %w", err)
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, fmt.Errorf("could not read response body: %w", err)
	}
	duration := time.Since(before)

	if res.StatusCode != want {
		var apiErr model.Error
		_ = json.Unmarshal(resBody, &apiErr)
		return 0, fmt.Errorf("%s %s: status %d: %s %s", method, url, res.StatusCode, apiErr.Kind, apiErr.Message)
	}
	if out != nil {
		if err := json.Unmarshal(resBody, out); err != nil {
			return 0, fmt.Errorf("could not unmarshal JSON: %w", err)
		}
	}
	return duration, nil
}
