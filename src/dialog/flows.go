package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"places_bot/src/types"
)

const (
	msgCancelled       = "Cancelled."
	msgNothingToCancel = "Nothing to cancel."
	msgUnknownCommand  = "Unknown command. Send /start for the list of commands."
	msgNoDialog        = "Send /start to see what I can do."
	msgStorageFailure  = "Something went wrong, please try again later."
)

type flow struct {
	prompts []string
	// substring flows keep surrounding spaces in the answer.
	substring bool
	finish    func(ctx context.Context, e *Engine, fields []string) string
}

var flows = map[string]*flow{
	CmdPlaceByName: {
		prompts: []string{"Enter the place name:"},
		finish:  placeByName,
	},
	CmdPlaceByAddress: {
		prompts: []string{"Enter the place address:"},
		finish:  placeByAddress,
	},
	CmdListPlaces: {
		prompts:   []string{"Enter a category (for example tourism, park, entertainment):"},
		substring: true,
		finish:    listPlaces,
	},
	CmdUpdatePlace: {
		prompts: []string{"Enter the name of the place to update:", "Enter the new address:"},
		finish:  updatePlace,
	},
	CmdAddPlace: {
		prompts: []string{"Enter the new place's name:", "Enter the new place's category:", "Enter the new place's address:"},
		finish:  addPlace,
	},
	CmdDeletePlace: {
		prompts: []string{"Enter the name of the place to delete:"},
		finish:  deletePlace,
	},
}

func (e *Engine) failed(op string, err error) string {
	e.log.Error("bot store call failed", "op", op, "err", err)
	return msgStorageFailure
}

func placeByName(ctx context.Context, e *Engine, f []string) string {
	name := f[0]
	addr, err := e.store.FindAddressByName(ctx, name)
	if errors.Is(err, types.ErrNotFound) {
		return fmt.Sprintf("No place named %q was found.", name)
	}
	if err != nil {
		return e.failed(CmdPlaceByName, err)
	}
	return fmt.Sprintf("Address of %q: %s", name, addr)
}

func placeByAddress(ctx context.Context, e *Engine, f []string) string {
	address := f[0]
	name, err := e.store.FindNameByAddress(ctx, address)
	if errors.Is(err, types.ErrNotFound) {
		return fmt.Sprintf("No place at %q was found.", address)
	}
	if err != nil {
		return e.failed(CmdPlaceByAddress, err)
	}
	return fmt.Sprintf("Place at %q: %s", address, name)
}

func listPlaces(ctx context.Context, e *Engine, f []string) string {
	category := f[0]
	places, err := e.store.ListByCategory(ctx, category)
	if err != nil {
		return e.failed(CmdListPlaces, err)
	}
	if len(places) == 0 {
		return fmt.Sprintf("No places found for category %q.", category)
	}
	return FormatPlaces(places)
}

func updatePlace(ctx context.Context, e *Engine, f []string) string {
	name, address := f[0], f[1]
	n, err := e.store.UpdateAddress(ctx, name, address)
	if err != nil {
		return e.failed(CmdUpdatePlace, err)
	}
	if n == 0 {
		return fmt.Sprintf("No place named %q was found.", name)
	}
	return fmt.Sprintf("Address of %q updated.", name)
}

func addPlace(ctx context.Context, e *Engine, f []string) string {
	name, category, address := f[0], f[1], f[2]
	if _, err := e.store.CreatePlace(ctx, name, category, address); err != nil {
		return e.failed(CmdAddPlace, err)
	}
	return fmt.Sprintf("Place %q added.", name)
}

func deletePlace(ctx context.Context, e *Engine, f []string) string {
	name := f[0]
	n, err := e.store.DeleteByName(ctx, name)
	if err != nil {
		return e.failed(CmdDeletePlace, err)
	}
	if n == 0 {
		return fmt.Sprintf("No place named %q was found.", name)
	}
	return fmt.Sprintf("Place %q deleted.", name)
}

// FormatPlaces renders places as name/address pairs separated by blank
// lines.
func FormatPlaces(places []types.Place) string {
	blocks := make([]string, 0, len(places))
	for _, p := range places {
		blocks = append(blocks, "Name: "+p.Name+"\nAddress: "+p.Address)
	}
	return strings.Join(blocks, "\n\n")
}
