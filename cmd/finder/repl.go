package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gfbeer/venue-finder/internal/apperr"
	"gfbeer/venue-finder/internal/backend"
	"gfbeer/venue-finder/internal/finder"
	"gfbeer/venue-finder/internal/model"
	"gfbeer/venue-finder/internal/results"
	"gfbeer/venue-finder/internal/search"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  near [km]                 venues around your location (default 5 km)
  name <query>              venues by name
  area <town|postcode>      venues in a town or postcode area
  postcode <postcode>       venues at a postcode
  beer [brewery|beer|style] <query>
                            venues stocking a gluten-free beer
  gf on|off                 only show venues with gluten-free options
  next | prev | page <n>    move through the results
  venue <id>                venue details
  back                      back to the results
  map | list | toggle       switch views (the map is written as GeoJSON)
  suggest <query>           name suggestions
  breweries [query]         known breweries
  beers <brewery>           a brewery's beers
  stats                     directory coverage
  where | forget            show or drop the cached location
  quit`

// lookups are the backend calls that do not produce a result page.
type lookups interface {
	Autocomplete(ctx context.Context, q string, searchType backend.SearchType, gfOnly bool) ([]model.Suggestion, error)
	Breweries(ctx context.Context, q string) ([]string, error)
	BreweryBeers(ctx context.Context, brewery, q string) ([]model.Beer, error)
	Stats(ctx context.Context) (model.Stats, error)
}

type command struct {
	name string
	args []string
}

func (c command) rest() string {
	return strings.Join(c.args, " ")
}

func parseCommand(line string) (command, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, false
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

// searchFor builds the descriptor for a search command. ok is false when the command is not
// a search.
func searchFor(c command) (model.SearchDescriptor, bool, error) {
	switch c.name {
	case "near":
		radius := 5.0
		if len(c.args) > 0 {
			km, err := strconv.ParseFloat(strings.TrimSuffix(c.args[0], "km"), 64)
			if err != nil || km <= 0 {
				return model.SearchDescriptor{}, true, fmt.Errorf("radius must be a positive number of km")
			}
			radius = km
		}
		return model.ProximitySearch(radius), true, nil
	case "name":
		return model.NameSearch(c.rest()), true, nil
	case "area":
		q := c.rest()
		return model.AreaSearch(q, search.AreaKindFor(q)), true, nil
	case "postcode":
		return model.AreaSearch(c.rest(), model.AreaPostcode), true, nil
	case "beer":
		kind := model.BeerName
		args := c.args
		if len(args) > 1 {
			switch k := model.BeerKind(strings.ToLower(args[0])); k {
			case model.BeerBrewery, model.BeerName, model.BeerStyle:
				kind = k
				args = args[1:]
			}
		}
		return model.BeerSearch(strings.Join(args, " "), kind), true, nil
	default:
		return model.SearchDescriptor{}, false, nil
	}
}

type repl struct {
	session *finder.Session
	lookups lookups
	out     *terminalRenderer
	in      *bufio.Scanner
	gfOnly  bool
}

func (r *repl) run(ctx context.Context) error {
	r.out.printf("gluten-free venue finder. type help for commands.\n")
	for {
		r.out.printf("> ")
		if !r.in.Scan() {
			return r.in.Err()
		}
		err := r.exec(ctx, r.in.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			r.out.printf("%s\n", describe(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func describe(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}

func (r *repl) exec(ctx context.Context, line string) error {
	c, ok := parseCommand(line)
	if !ok {
		return nil
	}

	desc, isSearch, err := searchFor(c)
	if err != nil {
		return err
	}
	if isSearch {
		desc.GFOnly = r.gfOnly
		// Failures have already been rendered as a no-results message.
		_, _ = r.session.Search(ctx, desc)
		return nil
	}

	switch c.name {
	case "help", "?":
		r.out.printf("%s\n", helpText)
	case "quit", "exit":
		return errQuit
	case "gf":
		switch c.rest() {
		case "on":
			r.gfOnly = true
		case "off":
			r.gfOnly = false
		default:
			return fmt.Errorf("usage: gf on|off")
		}
		r.out.printf("gluten-free only: %t\n", r.gfOnly)
	case "next":
		return r.paged(r.session.Pages.Next(ctx))
	case "prev", "previous":
		return r.paged(r.session.Pages.Previous(ctx))
	case "page":
		n, err := strconv.Atoi(c.rest())
		if err != nil {
			return fmt.Errorf("usage: page <n>")
		}
		return r.paged(r.session.Pages.GoToPage(ctx, n))
	case "back":
		return r.paged(r.session.BackToResults(ctx))
	case "venue":
		id, err := strconv.ParseInt(c.rest(), 10, 64)
		if err != nil {
			return fmt.Errorf("usage: venue <id>")
		}
		v, err := r.session.Venue(ctx, id)
		if err != nil {
			return err
		}
		r.out.venue(v)
	case "map":
		return r.showMap(ctx)
	case "list":
		r.session.View.ShowList()
	case "toggle":
		if err := r.session.View.Toggle(ctx); err != nil {
			return err
		}
		r.out.printf("%s view\n", r.session.View.State())
	case "suggest":
		suggestions, err := r.lookups.Autocomplete(ctx, c.rest(), backend.SearchAll, r.gfOnly)
		if err != nil {
			return err
		}
		for _, s := range suggestions {
			r.out.printf("  %d  %s, %s\n", s.ID, s.Name, s.Postcode)
		}
	case "breweries":
		names, err := r.lookups.Breweries(ctx, c.rest())
		if err != nil {
			return err
		}
		r.out.printf("%s\n", strings.Join(names, "\n"))
	case "beers":
		beers, err := r.lookups.BreweryBeers(ctx, c.rest(), "")
		if err != nil {
			return err
		}
		for _, b := range beers {
			r.out.printf("  %s (%s)\n", b.Name, b.Style)
		}
	case "stats":
		st, err := r.lookups.Stats(ctx)
		if err != nil {
			return err
		}
		r.out.printf("%d venues, %d with gluten-free beer\n", st.TotalVenues, st.GFVenues)
	case "where":
		if loc, ok := r.session.Location.Cached(); ok {
			r.out.printf("%.5f, %.5f (±%.0f m)\n", loc.Latitude, loc.Longitude, loc.AccuracyMeters)
		} else {
			r.out.printf("no current location\n")
		}
	case "forget":
		r.session.Location.Forget()
	default:
		return fmt.Errorf("unknown command %q, type help", c.name)
	}
	return nil
}

func (r *repl) paged(e *results.Entry, err error) error {
	if err == nil && e == nil {
		r.out.printf("search for venues first\n")
	}
	return err
}

func (r *repl) showMap(ctx context.Context) error {
	if err := r.session.View.ShowMap(ctx); err != nil {
		return err
	}
	r.out.printf("map written\n")
	return nil
}

// stdinConsent asks on the terminal before the location is looked up.
func stdinConsent(in *bufio.Scanner, out *terminalRenderer) func(ctx context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		out.printf("Find venues near you? Your approximate location will be looked up. [y/N] ")
		if !in.Scan() {
			return false, in.Err()
		}
		answer := strings.ToLower(strings.TrimSpace(in.Text()))
		return answer == "y" || answer == "yes", nil
	}
}
