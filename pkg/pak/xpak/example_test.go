package xpak_test

import (
	"context"
	"fmt"

	"github.com/omeyang/xpak/pkg/pak/xcatalog"
	"github.com/omeyang/xpak/pkg/pak/xloader"
	"github.com/omeyang/xpak/pkg/pak/xpak"
)

func Example() {
	catalog := xcatalog.NewStatic(map[string][]string{
		"level01":  {"textures", "audio"},
		"textures": nil,
		"audio":    nil,
	})
	loader := xloader.NewStatic(map[string][]byte{
		"level01":  []byte("level geometry"),
		"textures": []byte("texture atlas"),
		"audio":    []byte("sound bank"),
	})

	mgr, err := xpak.New(catalog, loader,
		xpak.WithBudget(1<<20, 0),
		xpak.WithLogger(nil),
	)
	if err != nil {
		panic(err)
	}
	defer mgr.Close()

	h, err := mgr.Acquire(context.Background(), "level01")
	if err != nil {
		panic(err)
	}
	defer h.Release()

	fmt.Println(string(h.Data()))
	fmt.Println(h.Deps())
	fmt.Println(mgr.IsResident("textures"))

	// Output:
	// level geometry
	// [textures audio]
	// true
}
