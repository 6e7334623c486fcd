//go:build js && wasm

package main

import (
	"fmt"
	"syscall/js"

	"github.com/MeKo-Tech/unsharpmask/internal/unsharp"
)

// sharpen is called from JavaScript as
//
//	unsharpMask(imageData.data, width, height, amount, radius, threshold)
//
// and sharpens the Uint8ClampedArray in place. It returns null on success or an
// error message.
func sharpen(this js.Value, args []js.Value) interface{} {
	if len(args) != 6 {
		return fmt.Sprintf("expected 6 arguments, got %d", len(args))
	}

	data := args[0]
	width := args[1].Int()
	height := args[2].Int()
	amount := args[3].Float()
	radius := args[4].Int()
	threshold := args[5].Float()

	pix := make([]uint8, data.Get("length").Int())
	js.CopyBytesToGo(pix, data)

	if err := unsharp.Apply(pix, width, height, amount, radius, threshold); err != nil {
		return err.Error()
	}

	js.CopyBytesToJS(data, pix)
	return nil
}

func main() {
	c := make(chan struct{})

	js.Global().Set("unsharpMask", js.FuncOf(sharpen))

	fmt.Println("unsharpmask WASM module loaded")
	<-c
}
