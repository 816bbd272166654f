package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cefstream/cefstream/jsonrs"
)

func init() {
	DefaultList = append(DefaultList, LISTEN())
}

func LISTEN() *cli.Command {
	c := &cli.Command{
		Name:  "listen",
		Usage: "spin up a local collector endpoint",
		Subcommands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "accept event batches over http and print what arrives",
				Action: ListenRun,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "port",
						Usage: "specify the port to listen on",
						Value: 8083,
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "print every event instead of batch counts",
						Value:   false,
					},
				},
			},
		},
	}

	return c
}

func ListenRun(c *cli.Context) error {
	port := c.Int("port")

	fmt.Printf("listening on: http://localhost:%d \n", port)
	httpWebServer := &http.Server{
		Addr: ":" + strconv.Itoa(port),
		Handler: &sink{
			Verbose: c.Bool("verbose"),
		},
		ReadTimeout:       0 * time.Second,
		ReadHeaderTimeout: 0 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       720 * time.Second,
		MaxHeaderBytes:    524288,
	}
	return httpWebServer.ListenAndServe()
}

type sink struct {
	Verbose bool
}

func (s *sink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		log.Println(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var events []json.RawMessage
	if err := jsonrs.Unmarshal(b, &events); err != nil {
		log.Printf("not an event batch: %v", err)
	} else if s.Verbose {
		for _, event := range events {
			log.Println(string(event))
		}
	} else {
		log.Printf("%d events, data type %q, subtype %q",
			len(events), r.Header.Get("X-Data-Type"), r.Header.Get("X-Subtype"))
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
