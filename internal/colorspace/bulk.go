package colorspace

// ToHSL converts every pixel of pix into HSL fields.
// The fourth sample of each pixel is skipped. pix must hold width*height*Channels samples.
func ToHSL(pix []uint8, width, height int) Fields {
	n := width * height
	f := NewFields(n)

	ptr := 0
	for i := 0; i < n; i++ {
		h, s, l := RGBToHSL(pix[ptr], pix[ptr+1], pix[ptr+2])
		f.HS[2*i] = float32(h)
		f.HS[2*i+1] = float32(s)
		f.L[i] = l
		ptr += Channels
	}

	return f
}

// FromHSL writes the RGB reconstruction of f back into pix.
// Only the first three samples of every pixel are written; the fourth is neither read nor written.
func FromHSL(f Fields, pix []uint8, width, height int) {
	n := width * height

	ptr := 0
	for i := 0; i < n; i++ {
		r, g, b := HSLToRGB(float64(f.HS[2*i]), float64(f.HS[2*i+1]), f.L[i])
		pix[ptr] = r
		pix[ptr+1] = g
		pix[ptr+2] = b
		ptr += Channels
	}
}
