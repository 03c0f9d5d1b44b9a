package support

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/tslatency/internal/testutil"
	"github.com/MeKo-Tech/tslatency/internal/utils"
	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
)

// aGrayImage writes a uniform gray image into the scenario directory.
func (testCtx *TestContext) aGrayImage(name string, width, height, level int) error {
	if level < 0 || level > 255 {
		return fmt.Errorf("gray level %d out of range", level)
	}
	path := testCtx.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := imaging.Save(testutil.GrayImage(width, height, uint8(level)), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	testCtx.TrackFile(path)
	return nil
}

func (testCtx *TestContext) aMidGrayImage(name string, width, height int) error {
	return testCtx.aGrayImage(name, width, height, 128)
}

// aStampedImage writes a gray image and stamps it with the CLI at a fixed
// time.
func (testCtx *TestContext) aStampedImage(name string, width, height int, at string, extra string) error {
	src := "plain-" + filepath.Base(name) + ".png"
	if err := testCtx.aMidGrayImage(src, width, height); err != nil {
		return err
	}
	testCtx.TrackFile(name)
	return testCtx.iRunCommandSuccessfully(fmt.Sprintf("tslatency stamp %s %s --at %s %s", src, name, at, extra))
}

func (testCtx *TestContext) aStampedImageAt(name string, width, height int, at string) error {
	return testCtx.aStampedImage(name, width, height, at, "")
}

func (testCtx *TestContext) theImageShouldBePixels(name string, width, height int) error {
	img, _, err := utils.LoadImage(testCtx.Path(name))
	if err != nil {
		return err
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		return fmt.Errorf("image %s is %dx%d, want %dx%d", name, b.Dx(), b.Dy(), width, height)
	}
	return nil
}

// theImagesShouldDifferOnlyInside compares two images pixel by pixel and
// fails on any change outside the rectangle.
func (testCtx *TestContext) theImagesShouldDifferOnlyInside(a, b string, x, y, width, height int) error {
	imgA, _, err := utils.LoadImage(testCtx.Path(a))
	if err != nil {
		return err
	}
	imgB, _, err := utils.LoadImage(testCtx.Path(b))
	if err != nil {
		return err
	}
	if imgA.Bounds() != imgB.Bounds() {
		return fmt.Errorf("bounds differ: %v vs %v", imgA.Bounds(), imgB.Bounds())
	}

	region := image.Rect(x, y, x+width, y+height)
	bounds := imgA.Bounds()
	changedInside := false
	for py := bounds.Min.Y; py < bounds.Max.Y; py++ {
		for px := bounds.Min.X; px < bounds.Max.X; px++ {
			ra, ga, ba, _ := imgA.At(px, py).RGBA()
			rb, gb, bb, _ := imgB.At(px, py).RGBA()
			if ra == rb && ga == gb && ba == bb {
				continue
			}
			if !(image.Point{X: px, Y: py}).In(region) {
				return fmt.Errorf("pixel (%d,%d) changed outside %v", px, py, region)
			}
			changedInside = true
		}
	}
	if !changedInside {
		return fmt.Errorf("no pixel changed inside %v", region)
	}
	return nil
}

// RegisterImageSteps registers steps that prepare and inspect image files.
func (testCtx *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a gray image "([^"]*)" of (\d+)x(\d+) pixels$`, testCtx.aMidGrayImage)
	sc.Step(`^a gray image "([^"]*)" of (\d+)x(\d+) pixels at level (\d+)$`, testCtx.aGrayImage)
	sc.Step(`^an image "([^"]*)" of (\d+)x(\d+) pixels stamped at (\d+)$`, testCtx.aStampedImageAt)
	sc.Step(`^an image "([^"]*)" of (\d+)x(\d+) pixels stamped at (\d+) with "([^"]*)"$`, testCtx.aStampedImage)
	sc.Step(`^the image "([^"]*)" should be (\d+)x(\d+) pixels$`, testCtx.theImageShouldBePixels)
	sc.Step(`^the images "([^"]*)" and "([^"]*)" should differ only inside (\d+),(\d+) (\d+)x(\d+)$`,
		testCtx.theImagesShouldDifferOnlyInside)
}
