package tensor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTensorBasics(t *testing.T) {
	Convey("Given a 2×3×1 tensor", t, func() {
		x := New(Uint8, 2, 3, 1)

		Convey("Then size, dims and validation agree", func() {
			So(x.Dims(), ShouldEqual, 3)
			So(x.Size(), ShouldEqual, 6)
			So(len(x.Data), ShouldEqual, 6)
			So(x.Validate(), ShouldBeNil)
			So(x.String(), ShouldEqual, "tensor[2 3 1][uint8]")
		})

		Convey("When reshaped to 6", func() {
			y, err := x.Reshape(6)
			So(err, ShouldBeNil)

			Convey("Then data is shared", func() {
				y.Data[0] = 7
				So(x.Data[0], ShouldEqual, 7)
				So(y.Shape, ShouldResemble, []int{6})
			})
		})

		Convey("When reshaped to an incompatible shape", func() {
			_, err := x.Reshape(4)
			So(errors.Is(err, ErrShapeMismatch), ShouldBeTrue)
		})

		Convey("When cloned", func() {
			y := x.Clone()
			y.Data[0] = 9
			y.Shape[0] = 5
			So(x.Data[0], ShouldEqual, 0)
			So(x.Shape[0], ShouldEqual, 2)
		})

		Convey("When data does not match the shape", func() {
			x.Data = x.Data[:5]
			So(errors.Is(x.Validate(), ErrShapeMismatch), ShouldBeTrue)
		})

		Convey("When HWC is asked of a 4-D tensor", func() {
			_, _, _, err := New(Float32, 1, 2, 2, 1).HWC()
			So(errors.Is(err, ErrBadShape), ShouldBeTrue)
		})
	})
}

func TestImageConversion(t *testing.T) {
	Convey("Given a 4 wide 2 tall RGB image", t, func() {
		img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
		img.Set(1, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
		img.Set(3, 1, color.NRGBA{R: 255, G: 0, B: 128, A: 255})

		Convey("When converted to a tensor", func() {
			x := FromImage(img)

			Convey("Then it is H×W×3 uint8 in row-major order", func() {
				So(x.Shape, ShouldResemble, []int{2, 4, 3})
				So(x.DType, ShouldEqual, Uint8)
				So(x.Data[3:6], ShouldResemble, []float32{10, 20, 30})
				So(x.Data[(1*4+3)*3:(1*4+3)*3+3], ShouldResemble, []float32{255, 0, 128})
			})

			Convey("And it round-trips through ToImage", func() {
				back, err := x.ToImage()
				So(err, ShouldBeNil)
				r, g, b, _ := back.At(3, 1).RGBA()
				So([]uint32{r >> 8, g >> 8, b >> 8}, ShouldResemble, []uint32{255, 0, 128})
			})
		})
	})

	Convey("Given a float mask with a batch axis", t, func() {
		x := New(Float32, 1, 2, 2, 1)
		x.Data[3] = 1

		Convey("Then it renders as a gray image scaled to 255", func() {
			img, err := x.ToImage()
			So(err, ShouldBeNil)
			gray, ok := img.(*image.Gray)
			So(ok, ShouldBeTrue)
			So(gray.Pix, ShouldResemble, []uint8{0, 0, 0, 255})
		})
	})

	Convey("Given encoded bytes", t, func() {
		Convey("When they hold a PNG", func() {
			var buf bytes.Buffer
			So(png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 5))), ShouldBeNil)
			img, err := Decode(buf.Bytes())
			So(err, ShouldBeNil)
			So(img.Bounds().Dx(), ShouldEqual, 3)
			So(img.Bounds().Dy(), ShouldEqual, 5)
		})

		Convey("When the header claims more pixels than allowed", func() {
			var buf bytes.Buffer
			So(png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 5))), ShouldBeNil)
			huge := withPNGSize(buf.Bytes(), 16000, 16000)

			_, err := DecodeLimited(huge, 25_000_000)
			So(errors.Is(err, ErrImageTooLarge), ShouldBeTrue)

			_, err = DecodeLimited(buf.Bytes(), 14)
			So(errors.Is(err, ErrImageTooLarge), ShouldBeTrue)

			img, err := DecodeLimited(buf.Bytes(), 15)
			So(err, ShouldBeNil)
			So(img.Bounds().Dx(), ShouldEqual, 3)
		})

		Convey("When they are garbage or empty", func() {
			_, err := Decode([]byte("not an image"))
			So(errors.Is(err, ErrDecode), ShouldBeTrue)
			_, err = Decode(nil)
			So(errors.Is(err, ErrDecode), ShouldBeTrue)
			_, err = DecodeLimited([]byte("not an image"), 100)
			So(errors.Is(err, ErrDecode), ShouldBeTrue)
		})
	})
}

// withPNGSize rewrites the IHDR width and height of an encoded PNG and fixes
// the chunk CRC, leaving the pixel data untouched.
func withPNGSize(raw []byte, w, h uint32) []byte {
	out := bytes.Clone(raw)
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}
