package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-skin/engine/model"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// gltfMeshExtractorImpl is the implementation of the gltfMeshExtractor interface.
type gltfMeshExtractorImpl struct {
	doc      *gltf.Document
	skeleton gltfSkeletonExtractor
}

// gltfMeshExtractor defines the interface for extracting mesh data from a decoded glTF document.
// It converts glTF accessor data into model.SkinnedMesh values.
type gltfMeshExtractor interface {
	// ExtractMesh extracts a single mesh by index.
	// Returns one SkinnedMesh per primitive (glTF meshes can have multiple primitives).
	//
	// Parameters:
	//   - meshIndex: the index of the mesh to extract
	//
	// Returns:
	//   - []model.SkinnedMesh: one SkinnedMesh per primitive
	//   - error: error if extraction fails
	ExtractMesh(meshIndex int) ([]model.SkinnedMesh, error)

	// ExtractAllMeshes extracts all meshes from the document.
	// Returns a flattened slice with one SkinnedMesh per primitive across all meshes.
	//
	// Returns:
	//   - []model.SkinnedMesh: all meshes (flattened, one per primitive)
	//   - error: error if extraction fails
	ExtractAllMeshes() ([]model.SkinnedMesh, error)
}

var _ gltfMeshExtractor = &gltfMeshExtractorImpl{}

// newGLTFMeshExtractor creates a new mesh extractor for a decoded document.
//
// Parameters:
//   - doc: the decoded document
//
// Returns:
//   - gltfMeshExtractor: the mesh extractor
func newGLTFMeshExtractor(doc *gltf.Document) gltfMeshExtractor {
	return &gltfMeshExtractorImpl{doc: doc, skeleton: newGLTFSkeletonExtractor(doc)}
}

func (e *gltfMeshExtractorImpl) ExtractMesh(meshIndex int) ([]model.SkinnedMesh, error) {
	if meshIndex < 0 || meshIndex >= len(e.doc.Meshes) {
		return nil, fmt.Errorf("mesh index %d out of range", meshIndex)
	}
	mesh := e.doc.Meshes[meshIndex]

	var bindPoses []mgl32.Mat4
	if skin := e.skeleton.FindSkinForMesh(meshIndex); skin >= 0 {
		var err error
		if bindPoses, err = e.skeleton.BindPoses(skin); err != nil {
			return nil, fmt.Errorf("mesh %d: %w", meshIndex, err)
		}
	}

	name := mesh.Name
	if name == "" {
		name = fmt.Sprintf("mesh_%d", meshIndex)
	}

	result := make([]model.SkinnedMesh, 0, len(mesh.Primitives))
	for primIdx, prim := range mesh.Primitives {
		primName := name
		if primIdx > 0 {
			primName = fmt.Sprintf("%s_prim%d", name, primIdx)
		}
		m, err := e.extractPrimitive(prim, primName, bindPoses, gltfTargetNames(mesh))
		if err != nil {
			return nil, fmt.Errorf("mesh %d primitive %d: %w", meshIndex, primIdx, err)
		}
		result = append(result, m)
	}
	return result, nil
}

func (e *gltfMeshExtractorImpl) ExtractAllMeshes() ([]model.SkinnedMesh, error) {
	var all []model.SkinnedMesh
	for i := range e.doc.Meshes {
		meshes, err := e.ExtractMesh(i)
		if err != nil {
			return nil, err
		}
		all = append(all, meshes...)
	}
	return all, nil
}

// accessor resolves an accessor index with a range check.
func (e *gltfMeshExtractorImpl) accessor(idx int) (*gltf.Accessor, error) {
	if idx < 0 || idx >= len(e.doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", idx)
	}
	return e.doc.Accessors[idx], nil
}

// extractPrimitive extracts a single triangle primitive as a SkinnedMesh.
func (e *gltfMeshExtractorImpl) extractPrimitive(prim *gltf.Primitive, name string, bindPoses []mgl32.Mat4, targetNames []string) (model.SkinnedMesh, error) {
	if prim.Mode != gltf.PrimitiveTriangles {
		return nil, fmt.Errorf("unsupported primitive mode: %d (only triangles supported)", prim.Mode)
	}

	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, fmt.Errorf("primitive has no POSITION attribute")
	}
	acr, err := e.accessor(posIdx)
	if err != nil {
		return nil, err
	}
	positions, err := modeler.ReadPosition(e.doc, acr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	options := []model.SkinnedMeshBuilderOption{
		model.WithName(name),
		model.WithRestPositions(toVec3s(positions)),
	}

	if idx, ok := prim.Attributes[gltf.NORMAL]; ok {
		acr, err := e.accessor(idx)
		if err != nil {
			return nil, err
		}
		normals, err := modeler.ReadNormal(e.doc, acr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read normals: %w", err)
		}
		options = append(options, model.WithNormals(toVec3s(normals)))
	}

	// glTF TANGENT is VEC4: xyz = tangent direction, w = handedness (±1).
	if idx, ok := prim.Attributes[gltf.TANGENT]; ok {
		acr, err := e.accessor(idx)
		if err != nil {
			return nil, err
		}
		tangents, err := modeler.ReadTangent(e.doc, acr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read tangents: %w", err)
		}
		out := make([]mgl32.Vec4, len(tangents))
		for i, t := range tangents {
			out[i] = t
		}
		options = append(options, model.WithTangents(out))
	}

	if idx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		acr, err := e.accessor(idx)
		if err != nil {
			return nil, err
		}
		uvs, err := modeler.ReadTextureCoord(e.doc, acr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read texcoords: %w", err)
		}
		out := make([]mgl32.Vec2, len(uvs))
		for i, uv := range uvs {
			out[i] = uv
		}
		options = append(options, model.WithTexCoords(out))
	}

	weightOptions, err := e.readBoneWeights(prim, bindPoses)
	if err != nil {
		return nil, err
	}
	options = append(options, weightOptions...)

	if prim.Indices != nil {
		acr, err := e.accessor(*prim.Indices)
		if err != nil {
			return nil, err
		}
		indices, err := modeler.ReadIndices(e.doc, acr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read indices: %w", err)
		}
		options = append(options, model.WithIndices(indices))
	}

	shapes, err := e.readBlendShapes(prim, targetNames)
	if err != nil {
		return nil, err
	}
	if len(shapes) > 0 {
		options = append(options, model.WithBlendShapes(shapes...))
	}

	return model.NewSkinnedMesh(options...)
}

// readBoneWeights reads JOINTS_0 and WEIGHTS_0. Both must be present for the mesh to be skinned,
// and the mesh then carries four influences per vertex. Without a skin, every referenced joint
// gets an identity bind pose.
func (e *gltfMeshExtractorImpl) readBoneWeights(prim *gltf.Primitive, bindPoses []mgl32.Mat4) ([]model.SkinnedMeshBuilderOption, error) {
	jointsIdx, hasJoints := prim.Attributes[gltf.JOINTS_0]
	weightsIdx, hasWeights := prim.Attributes[gltf.WEIGHTS_0]
	if !hasJoints || !hasWeights {
		return nil, nil
	}

	acr, err := e.accessor(jointsIdx)
	if err != nil {
		return nil, err
	}
	joints, err := modeler.ReadJoints(e.doc, acr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read joints: %w", err)
	}
	if acr, err = e.accessor(weightsIdx); err != nil {
		return nil, err
	}
	weights, err := modeler.ReadWeights(e.doc, acr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights: %w", err)
	}
	if len(joints) != len(weights) {
		return nil, fmt.Errorf("%w: %d joints, %d weights", model.ErrVertexCountMismatch, len(joints), len(weights))
	}

	bw := make([]model.BoneWeight, len(joints))
	maxJoint := -1
	for v := range joints {
		for s := range model.MaxBoneInfluences {
			bw[v].Indices[s] = uint32(joints[v][s])
			bw[v].Weights[s] = weights[v][s]
			maxJoint = max(maxJoint, int(joints[v][s]))
		}
	}

	if bindPoses == nil {
		bindPoses = make([]mgl32.Mat4, maxJoint+1)
		for i := range bindPoses {
			bindPoses[i] = mgl32.Ident4()
		}
	}
	return []model.SkinnedMeshBuilderOption{
		model.WithBoneWeights(model.MaxBoneInfluences, bw),
		model.WithBindPoses(bindPoses),
	}, nil
}

// readBlendShapes reads the POSITION delta of every morph target. Targets without POSITION
// contribute a zero delta so shape indices keep matching the mesh weights.
func (e *gltfMeshExtractorImpl) readBlendShapes(prim *gltf.Primitive, names []string) ([]model.BlendShape, error) {
	shapes := make([]model.BlendShape, 0, len(prim.Targets))
	for t, target := range prim.Targets {
		shape := model.BlendShape{Name: fmt.Sprintf("target_%d", t)}
		if t < len(names) && names[t] != "" {
			shape.Name = names[t]
		}

		if idx, ok := target[gltf.POSITION]; ok {
			acr, err := e.accessor(idx)
			if err != nil {
				return nil, err
			}
			deltas, err := modeler.ReadPosition(e.doc, acr, nil)
			if err != nil {
				return nil, fmt.Errorf("target %d: failed to read position deltas: %w", t, err)
			}
			shape.DeltaPositions = toVec3s(deltas)
		}
		if idx, ok := target[gltf.NORMAL]; ok {
			acr, err := e.accessor(idx)
			if err != nil {
				return nil, err
			}
			deltas, err := modeler.ReadNormal(e.doc, acr, nil)
			if err != nil {
				return nil, fmt.Errorf("target %d: failed to read normal deltas: %w", t, err)
			}
			shape.DeltaNormals = toVec3s(deltas)
		}
		shapes = append(shapes, shape)
	}

	for s := range shapes {
		if shapes[s].DeltaPositions != nil {
			continue
		}
		idx := prim.Attributes[gltf.POSITION]
		shapes[s].DeltaPositions = make([]mgl32.Vec3, e.doc.Accessors[idx].Count)
	}
	return shapes, nil
}

// gltfTargetNames reads the morph target names exporters store in mesh.extras.targetNames.
func gltfTargetNames(mesh *gltf.Mesh) []string {
	extras, ok := mesh.Extras.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := extras["targetNames"].([]any)
	if !ok {
		return nil
	}
	names := make([]string, len(raw))
	for i, n := range raw {
		names[i], _ = n.(string)
	}
	return names
}

func toVec3s(vs [][3]float32) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
