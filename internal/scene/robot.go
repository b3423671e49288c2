// Package scene binds avatar poses onto a glTF node graph of the robot so a posed
// frame can be exported and loaded by any glTF viewer.
package scene

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/normanking/veriflow/internal/avatar3d"
	"github.com/qmuntal/gltf"
)

// Node names in the robot graph
const (
	NodeRoot          = "Robot"
	NodeTorso         = "Torso"
	NodeLeftShoulder  = "LeftShoulder"
	NodeRightShoulder = "RightShoulder"
	NodeLeftArm       = "LeftArm"
	NodeRightArm      = "RightArm"
	NodeNeck          = "Neck"
	NodeHead          = "Head"
	NodeLeftEye       = "LeftEye"
	NodeRightEye      = "RightEye"
	NodeMouth         = "Mouth"
)

// Material names
const (
	MaterialBody  = "Body"
	MaterialJoint = "Joint"
	MaterialNeck  = "Neck"
	MaterialEye   = "Eye"
	MaterialMouth = "Mouth"
)

// ExtraEmissiveIntensity is the material extras key holding the emissive multiplier.
const ExtraEmissiveIntensity = "emissiveIntensity"

type nodeSpec struct {
	name        string
	parent      string
	translation [3]float64
	material    string
}

// Rest layout of the robot, parents before children.
var layout = []nodeSpec{
	{name: NodeRoot},
	{name: NodeTorso, parent: NodeRoot, translation: [3]float64{0, 0.4, 0}, material: MaterialBody},
	{name: NodeLeftShoulder, parent: NodeRoot, translation: [3]float64{-0.45, 0.75, 0}, material: MaterialJoint},
	{name: NodeRightShoulder, parent: NodeRoot, translation: [3]float64{0.45, 0.75, 0}, material: MaterialJoint},
	{name: NodeLeftArm, parent: NodeRoot, translation: [3]float64{-0.45, 0.75, 0}, material: MaterialJoint},
	{name: NodeRightArm, parent: NodeRoot, translation: [3]float64{0.45, 0.75, 0}, material: MaterialJoint},
	{name: NodeNeck, parent: NodeRoot, translation: [3]float64{0, 0.9, 0}, material: MaterialNeck},
	{name: NodeHead, parent: NodeRoot, translation: [3]float64{0, 1.25, 0}, material: MaterialJoint},
	{name: NodeLeftEye, parent: NodeHead, translation: [3]float64{-0.15, 0.1, 0.35}, material: MaterialEye},
	{name: NodeRightEye, parent: NodeHead, translation: [3]float64{0.15, 0.1, 0.35}, material: MaterialEye},
	{name: NodeMouth, parent: NodeHead, translation: [3]float64{0, -0.1, 0.36}, material: MaterialMouth},
}

// Robot is a glTF document holding the robot's node graph and materials.
type Robot struct {
	Doc *gltf.Document

	nodes     map[string]int
	materials map[string]int
}

// NewRobot builds the robot in its rest pose.
func NewRobot() *Robot {
	r := &Robot{
		Doc: &gltf.Document{
			Asset: gltf.Asset{Version: "2.0", Generator: "veriflow"},
		},
		nodes:     make(map[string]int, len(layout)),
		materials: make(map[string]int),
	}

	r.addMaterial(MaterialBody, "#424242", 0.8, 0.3)
	r.addMaterial(MaterialJoint, "#303030", 0.8, 0.3)
	r.addMaterial(MaterialNeck, "#212121", 0.9, 0.1)
	r.addMaterial(MaterialEye, avatar3d.EyeColor(""), 0, 1)
	r.addMaterial(MaterialMouth, avatar3d.EyeColor(""), 0, 1)

	for _, spec := range layout {
		node := &gltf.Node{
			Name:        spec.name,
			Translation: spec.translation,
			Rotation:    [4]float64{0, 0, 0, 1},
			Scale:       [3]float64{1, 1, 1},
		}
		if spec.material != "" {
			node.Extras = map[string]any{"material": spec.material}
		}
		idx := len(r.Doc.Nodes)
		r.Doc.Nodes = append(r.Doc.Nodes, node)
		r.nodes[spec.name] = idx
		if spec.parent != "" {
			parent := r.Doc.Nodes[r.nodes[spec.parent]]
			parent.Children = append(parent.Children, idx)
		}
	}

	r.Doc.Scenes = []*gltf.Scene{{Name: "VeriFlow", Nodes: []int{r.nodes[NodeRoot]}}}
	r.Doc.Scene = gltf.Index(0)

	r.Apply(avatar3d.Pose{
		EyeIntensity: 1,
		EyeScale:     1,
		EyeColor:     avatar3d.EyeColor(""),
		MouthScale:   0.05,
		Breath:       1,
	})
	return r
}

func (r *Robot) addMaterial(name, hex string, metallic, roughness float64) {
	rgb := mustHex(hex)
	r.materials[name] = len(r.Doc.Materials)
	r.Doc.Materials = append(r.Doc.Materials, &gltf.Material{
		Name: name,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float64{rgb[0], rgb[1], rgb[2], 1},
			MetallicFactor:  &metallic,
			RoughnessFactor: &roughness,
		},
	})
}

// Node returns the named node, or nil.
func (r *Robot) Node(name string) *gltf.Node {
	idx, ok := r.nodes[name]
	if !ok {
		return nil
	}
	return r.Doc.Nodes[idx]
}

// Material returns the named material, or nil.
func (r *Robot) Material(name string) *gltf.Material {
	idx, ok := r.materials[name]
	if !ok {
		return nil
	}
	return r.Doc.Materials[idx]
}

// Apply writes a pose onto the node transforms and the eye/mouth materials.
func (r *Robot) Apply(p avatar3d.Pose) {
	root := r.Node(NodeRoot)
	root.Translation = [3]float64{0, float64(p.BodyY), 0}
	root.Extras = map[string]any{"mood": string(p.Mood), "overlay": string(p.Overlay), "t": p.Time}

	r.Node(NodeTorso).Scale = [3]float64{1, float64(p.Breath), 1}
	r.Node(NodeHead).Rotation = eulerToQuat(p.Head[0], p.Head[1], p.Head[2])
	r.Node(NodeLeftArm).Rotation = eulerToQuat(p.LeftArm[0], 0, p.LeftArm[1])
	r.Node(NodeRightArm).Rotation = eulerToQuat(p.RightArm[0], 0, p.RightArm[1])

	for _, eye := range []string{NodeLeftEye, NodeRightEye} {
		r.Node(eye).Scale = [3]float64{1, float64(p.EyeScale), 1}
	}
	r.Node(NodeMouth).Scale = [3]float64{1, float64(p.MouthScale), 1}

	color := p.EyeColor
	if color == "" {
		color = avatar3d.EyeColor(p.Mood)
	}
	setEmissive(r.Material(MaterialEye), color, p.EyeIntensity)
	setEmissive(r.Material(MaterialMouth), color, p.MouthIntensity)
}

// Save writes the document; a .glb extension selects the binary container.
func (r *Robot) Save(path string) error {
	var err error
	if strings.EqualFold(filepath.Ext(path), ".glb") {
		err = gltf.SaveBinary(r.Doc, path)
	} else {
		err = gltf.Save(r.Doc, path)
	}
	if err != nil {
		return fmt.Errorf("save scene: %w", err)
	}
	return nil
}

func setEmissive(m *gltf.Material, hex string, intensity float32) {
	rgb, err := parseHex(hex)
	if err != nil {
		rgb = mustHex(avatar3d.EyeColor(""))
	}
	m.EmissiveFactor = rgb
	m.PBRMetallicRoughness.BaseColorFactor = &[4]float64{rgb[0], rgb[1], rgb[2], 1}
	m.Extras = map[string]any{ExtraEmissiveIntensity: float64(intensity)}
}

// eulerToQuat converts XYZ-ordered Euler angles to a glTF [x y z w] rotation.
func eulerToQuat(x, y, z float32) [4]float64 {
	q := mgl32.AnglesToQuat(x, y, z, mgl32.XYZ).Normalize()
	return [4]float64{float64(q.V[0]), float64(q.V[1]), float64(q.V[2]), float64(q.W)}
}

func parseHex(s string) ([3]float64, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return [3]float64{}, fmt.Errorf("invalid color %q", s)
	}
	var rgb [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return [3]float64{}, fmt.Errorf("invalid color %q: %w", s, err)
		}
		rgb[i] = float64(v) / 255
	}
	return rgb, nil
}

func mustHex(s string) [3]float64 {
	rgb, err := parseHex(s)
	if err != nil {
		panic(err)
	}
	return rgb
}
